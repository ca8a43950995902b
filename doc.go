// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package soap builds and sends calls to SOAP-RPC gateways that use the
// Apache SOAP map encoding, such as the Magento v1 API.
//
// # Call trees
//
// A CallBuilder turns arbitrary Go values into a CallNode tree in which every
// value node carries an explicit kind (xsi:type, SOAP-ENC:arrayType or
// xsi:nil), so the peer can rebuild the original shape without a schema:
//
//	b := soap.NewCallBuilder()
//	call, err := b.Call(sessionID, "catalog_product.info", map[string]any{
//	    "ids":    []int{1, 2, 3},
//	    "active": true,
//	})
//
// Values are classified once by ValueOf into a Value and then encoded by an
// Encoder. Structs are encoded as ns2:Map records; the `soap` struct tag
// renames or skips fields:
//
//	type Filter struct {
//	    Status string    `soap:"status"`
//	    Since  time.Time `soap:"created_at,omitempty"`
//	    cache  []byte
//	}
//
// Cyclic and overly deep values fail with a StructuralError; values with no
// wire form fail with a SerializationError.
//
// # Transport Selection
//
// SOAP over HTTP is the default transport. Others are selected with
// WithTransport:
//
//	http   SOAP 1.1 envelopes over HTTP POST (default)
//	json   JSON-RPC 2.0 over HTTP
//	frame  length-prefixed envelopes over a TCP connection
//	grpc   unary gRPC, requires -tags grpc
//
// # Usage
//
//	client, err := soap.Dial(ctx, "https://shop.example/api/soap/",
//	    soap.WithLogger(logger),
//	    soap.WithSessionStore(session.NewMemoryStore(), time.Hour),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.Login(ctx, "bob", apiKey); err != nil {
//	    log.Fatal(err)
//	}
//	info, err := client.Call(ctx, "customer.info", 42)
//
// Remote faults are returned as *Fault.
//
// # Architecture
//
//   - value.go, reflect.go: Value and its construction from Go values
//   - encoder.go, call.go: Encoder and CallBuilder
//   - envelope.go, codec.go: SOAP envelopes and codecs
//   - plain.go: decoding trees back to plain Go values
//   - client.go, dial.go: Client interface and Dial
//   - http.go, jsonrpc.go, frame.go, dial_grpc.go: transports
//   - server.go: Mux, which answers calls over HTTP and frame connections
package soap
