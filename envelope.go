// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNoBody = errors.New("soap: envelope has no body")

// Response is a decoded response envelope.
type Response struct {
	// Body is the first element inside SOAP-ENV:Body, e.g. ns1:callResponse.
	Body  *CallNode
	Fault *Fault

	// set by transports that do not carry a tree (JSON-RPC)
	plain    any
	hasPlain bool
}

// NewPlainResponse wraps an already decoded result.
func NewPlainResponse(v any) *Response {
	return &Response{plain: v, hasPlain: true}
}

// Result returns the Fault as an error, or the decoded return value.
func (r *Response) Result() (any, error) {
	if r.Fault != nil {
		return nil, r.Fault
	}
	if r.hasPlain {
		return r.plain, nil
	}
	if r.Body == nil {
		return nil, ErrNoBody
	}
	if len(r.Body.Children) == 0 {
		return nil, nil
	}
	return PlainValue(r.Body.Children[0])
}

func qname(local string) xml.Name {
	return xml.Name{Local: local}
}

func xmlnsAttr(ns Namespace) xml.Attr {
	return xml.Attr{Name: qname("xmlns:" + ns.Prefix), Value: ns.URI}
}

// WriteEnvelope renders body inside a SOAP 1.1 envelope.
func WriteEnvelope(w io.Writer, body *CallNode) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	env := xml.StartElement{
		Name: qname(NSEnvelope.Qualify("Envelope")),
		Attr: []xml.Attr{
			xmlnsAttr(NSEnvelope),
			xmlnsAttr(NSMagento),
			xmlnsAttr(NSEncoding),
			{Name: qname(NSEnvelope.Qualify("encodingStyle")), Value: NSEncoding.URI},
		},
	}
	bodyStart := xml.StartElement{Name: qname(NSEnvelope.Qualify("Body"))}
	if err := enc.EncodeToken(env); err != nil {
		return err
	}
	if err := enc.EncodeToken(bodyStart); err != nil {
		return err
	}
	if err := writeNode(enc, body); err != nil {
		return err
	}
	if err := enc.EncodeToken(bodyStart.End()); err != nil {
		return err
	}
	if err := enc.EncodeToken(env.End()); err != nil {
		return err
	}
	return enc.Flush()
}

func writeNode(enc *xml.Encoder, n *CallNode) error {
	start := xml.StartElement{
		Name: qname(n.Namespace.Qualify(n.Name)),
		Attr: make([]xml.Attr, 0, len(n.Declared)+len(n.Attrs)),
	}
	for _, ns := range n.Declared {
		start.Attr = append(start.Attr, xmlnsAttr(ns))
	}
	for _, a := range n.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: qname(a.Namespace.Qualify(a.Name)), Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.HasText {
		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := writeNode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// ReadEnvelope parses a response or request envelope.
func ReadEnvelope(r io.Reader) (*Response, error) {
	root, err := readTree(xml.NewDecoder(r))
	if err != nil {
		return nil, err
	}
	if root.Name != "Envelope" {
		return nil, fmt.Errorf("soap: expected Envelope, got %q", root.Name)
	}
	body := root.Child("Body")
	if body == nil || len(body.Children) == 0 {
		return nil, ErrNoBody
	}
	first := body.Children[0]
	if first.Name == "Fault" {
		return &Response{Body: first, Fault: faultOf(first)}, nil
	}
	return &Response{Body: first}, nil
}

func faultOf(n *CallNode) *Fault {
	f := &Fault{}
	if c := n.Child("faultcode"); c != nil {
		f.Code = c.Text
	}
	if c := n.Child("faultstring"); c != nil {
		f.String = c.Text
	}
	return f
}

// readTree reads one element and everything below it.
func readTree(dec *xml.Decoder) (*CallNode, error) {
	var (
		stack []*CallNode
		text  []*strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("soap: truncated envelope: %w", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, fmt.Errorf("soap: malformed envelope: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := NewNode(t.Name.Local, Namespace{URI: t.Name.Space})
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Namespace: Namespace{URI: a.Name.Space}, Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.appendChild(n)
			}
			stack = append(stack, n)
			text = append(text, &strings.Builder{})
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		case xml.EndElement:
			n := stack[len(stack)-1]
			if len(n.Children) == 0 {
				n.Text, n.HasText = text[len(text)-1].String(), true
			}
			stack, text = stack[:len(stack)-1], text[:len(text)-1]
			if len(stack) == 0 {
				return n, nil
			}
		}
	}
}
