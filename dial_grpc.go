//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// gatewayService is the gRPC service whose methods are the call names.
const gatewayService = "/soap.Gateway/"

// envelopeCodec passes envelope bytes through gRPC untouched.
type envelopeCodec struct{}

func (envelopeCodec) Name() string { return "soap-envelope" }

func (envelopeCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return nil, fmt.Errorf("envelope codec cannot marshal %T", v)
}

func (envelopeCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("envelope codec cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func init() {
	encoding.RegisterCodec(envelopeCodec{})
	// Register gRPC transport when build tag is enabled
	registerTransport(TransportGRPC, dialGRPC)
}

func dialGRPC(ctx context.Context, addr string, o *dialOptions) (Transport, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(envelopeCodec{}.Name())),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &grpcTransport{conn: conn, codec: o.codec, logger: o.logger}, nil
}

type grpcTransport struct {
	conn   *grpc.ClientConn
	codec  Codec
	logger *zap.Logger
}

func (t *grpcTransport) RoundTrip(ctx context.Context, call *CallNode) (*Response, error) {
	payload, err := t.codec.Encode(call)
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}
	var reply []byte
	if err := t.conn.Invoke(ctx, gatewayService+call.Name, payload, &reply); err != nil {
		return nil, err
	}
	var resp Response
	if err := t.codec.Decode(reply, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func (t *grpcTransport) Close() error {
	return t.conn.Close()
}

// ListenGRPC serves mux over gRPC on addr. Every method of soap.Gateway is
// routed to the envelope's call name, so no service descriptor is needed.
func ListenGRPC(addr string, mux *Mux) (*GRPCServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &GRPCServer{listener: lis, mux: mux}
	s.server = grpc.NewServer(grpc.UnknownServiceHandler(s.handleStream))
	return s, nil
}

// GRPCServer implements Server over gRPC
type GRPCServer struct {
	listener net.Listener
	server   *grpc.Server
	mux      *Mux
}

func (s *GRPCServer) handleStream(_ any, stream grpc.ServerStream) error {
	method, ok := grpc.MethodFromServerStream(stream)
	if !ok || !strings.HasPrefix(method, gatewayService) {
		return fmt.Errorf("unknown method %q", method)
	}
	var req []byte
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	resp, err := s.mux.ServeEnvelope(stream.Context(), req)
	if err != nil {
		return err
	}
	return stream.SendMsg(resp)
}

func (s *GRPCServer) Handle(call string, h Handler) { s.mux.Handle(call, h) }

func (s *GRPCServer) Serve(ctx context.Context) error { return s.server.Serve(s.listener) }

func (s *GRPCServer) Close() error {
	s.server.Stop()
	return nil
}

func (s *GRPCServer) Addr() string { return s.listener.Addr().String() }
