// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import "strconv"

// Namespace identifies an XML namespace by prefix and URI.
type Namespace struct {
	Prefix string `json:"prefix,omitempty" cbor:"1,keyasint,omitempty"`
	URI    string `json:"uri,omitempty" cbor:"2,keyasint,omitempty"`
}

// Namespaces used by the call envelope.
var (
	NoNamespace    = Namespace{}
	NSMagento      = Namespace{Prefix: "ns1", URI: "urn:Magento"}
	NSApacheSOAP   = Namespace{Prefix: "ns2", URI: "http://xml.apache.org/xml-soap"}
	NSXSI          = Namespace{Prefix: "xsi", URI: "http://www.w3.org/2001/XMLSchema-instance"}
	NSXSD          = Namespace{Prefix: "xsd", URI: "http://www.w3.org/2001/XMLSchema"}
	NSEncoding     = Namespace{Prefix: "SOAP-ENC", URI: "http://schemas.xmlsoap.org/soap/encoding/"}
	NSEncodingAttr = Namespace{Prefix: "encodingStyle", URI: "http://schemas.xmlsoap.org/soap/encoding/"}
	NSEnvelope     = Namespace{Prefix: "SOAP-ENV", URI: "http://schemas.xmlsoap.org/soap/envelope/"}
)

// Qualify returns prefix:local, or local when the namespace has no prefix.
func (ns Namespace) Qualify(local string) string {
	if ns.Prefix == "" {
		return local
	}
	return ns.Prefix + ":" + local
}

// Attr is a namespace qualified attribute.
type Attr struct {
	Namespace Namespace `json:"ns" cbor:"1,keyasint"`
	Name      string    `json:"name" cbor:"2,keyasint"`
	Value     string    `json:"value" cbor:"3,keyasint"`
}

// CallNode is one element of an outbound call tree.
//
// Leaves carry Text, composites carry Children; a node never has both.
// Kind is set on every value node produced by the Encoder; structural nodes
// (call roots, map items, plain text leaves) leave it zero.
type CallNode struct {
	Name      string      `json:"name" cbor:"1,keyasint"`
	Namespace Namespace   `json:"ns" cbor:"2,keyasint"`
	Kind      ValueKind   `json:"kind,omitempty" cbor:"3,keyasint,omitempty"`
	Attrs     []Attr      `json:"attrs,omitempty" cbor:"4,keyasint,omitempty"`
	Children  []*CallNode `json:"children,omitempty" cbor:"5,keyasint,omitempty"`
	Text      string      `json:"text,omitempty" cbor:"6,keyasint,omitempty"`
	HasText   bool        `json:"hasText,omitempty" cbor:"7,keyasint,omitempty"`
	Declared  []Namespace `json:"declared,omitempty" cbor:"8,keyasint,omitempty"`
}

// NewNode returns an empty element.
func NewNode(name string, ns Namespace) *CallNode {
	return &CallNode{Name: name, Namespace: ns}
}

// NewTextNode returns a leaf holding text verbatim.
func NewTextNode(name string, ns Namespace, text string) *CallNode {
	return &CallNode{Name: name, Namespace: ns, Text: text, HasText: true}
}

func (n *CallNode) setAttr(ns Namespace, name, value string) {
	for i := range n.Attrs {
		a := &n.Attrs[i]
		if a.Name == name && a.Namespace.URI == ns.URI {
			a.Namespace = ns
			a.Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Namespace: ns, Name: name, Value: value})
}

func (n *CallNode) appendChild(c *CallNode) {
	n.Children = append(n.Children, c)
}

// Attr returns the value of the first attribute with the given local name.
func (n *CallNode) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Type returns the xsi:type attribute, if any.
func (n *CallNode) Type() string {
	v, _ := n.Attr(AttrType)
	return v
}

// ArrayType returns the SOAP-ENC:arrayType attribute, if any.
func (n *CallNode) ArrayType() string {
	v, _ := n.Attr(AttrArrayType)
	return v
}

// IsNil reports whether the node carries the xsi:nil marker.
func (n *CallNode) IsNil() bool {
	v, ok := n.Attr(AttrNil)
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// Child returns the first direct child with the given name.
func (n *CallNode) Child(name string) *CallNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Len returns the number of direct children.
func (n *CallNode) Len() int {
	return len(n.Children)
}

// Walk visits n and its descendants depth first. Returning false from f
// skips the children of the visited node.
func (n *CallNode) Walk(f func(node *CallNode, depth int) bool) {
	n.walk(f, 0)
}

func (n *CallNode) walk(f func(*CallNode, int) bool, depth int) {
	if !f(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(f, depth+1)
	}
}
