// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// XMLCodec renders call trees as SOAP envelopes
type XMLCodec struct{}

func (XMLCodec) ContentType() string { return "text/xml; charset=utf-8" }

// Encode accepts a *CallNode.
func (XMLCodec) Encode(v interface{}) ([]byte, error) {
	n, ok := v.(*CallNode)
	if !ok {
		return nil, fmt.Errorf("soap: xml codec cannot encode %T", v)
	}
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode accepts a *Response or a **CallNode (the body element).
func (XMLCodec) Decode(data []byte, v interface{}) error {
	resp, err := ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return err
	}
	switch dst := v.(type) {
	case *Response:
		*dst = *resp
	case **CallNode:
		*dst = resp.Body
	default:
		return fmt.Errorf("soap: xml codec cannot decode into %T", v)
	}
	return nil
}

// JSONCodec is a JSON-based codec
type JSONCodec struct{}

func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func (JSONCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// CBORCodec is a compact binary codec for trees kept out of band, e.g. in
// request journals.
type CBORCodec struct{}

func (CBORCodec) ContentType() string { return "application/cbor" }

func (CBORCodec) Encode(v interface{}) ([]byte, error) {
	return cborMode.Marshal(v)
}

func (CBORCodec) Decode(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

var cborMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// defaultCodec is used when no codec is specified
var defaultCodec Codec = XMLCodec{}
