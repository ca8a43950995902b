// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import "fmt"

// DefaultMaxDepth bounds the nesting of encoded values.
const DefaultMaxDepth = 128

// Encoder maps arbitrary Go values to typed CallNode trees.
//
// An Encoder holds only immutable options and may be used concurrently.
type Encoder struct {
	maxDepth int
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithMaxDepth overrides DefaultMaxDepth. Values nested deeper fail with a
// StructuralError wrapping ErrTooDeep.
func WithMaxDepth(n int) EncoderOption {
	return func(e *Encoder) { e.maxDepth = n }
}

// NewEncoder returns an Encoder with the given options applied.
func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode converts v into a node called name. The first matching rule wins:
//
//   - nil (including nil pointers, maps and slices): xsi:nil="true"
//   - strings: xsd:string
//   - int8..int32, uint8, uint16, and int/uint/uint32 within int32 range: xsd:int
//   - other integers: xsd:long
//   - bool: xsd:boolean
//   - time.Time: xsd:string formatted as DateLayout
//   - floats, apd.Decimal, *big.Float: xsd:float
//   - string slices and arrays: xsd:string[N]
//   - other slices, arrays, iter.Seq[any] and ArrayLike: xsd:ur-type[N]
//   - *OrderedMap, maps and MapLike: ns2:Map of key/value items
//   - Describable and structs with exported fields: ns2:Map of properties
//
// Anything else fails with a *SerializationError. No partial tree is
// returned on error.
func (e *Encoder) Encode(name string, v any) (*CallNode, error) {
	val, err := newConverter(e.maxDepth).value(name, name, v, 0)
	if err != nil {
		return nil, err
	}
	return e.EncodeValue(name, val)
}

// EncodeValue encodes an already converted Value.
func (e *Encoder) EncodeValue(name string, v Value) (*CallNode, error) {
	return encodeValue(name, name, v)
}

func encodeValue(name, path string, v Value) (*CallNode, error) {
	kind := v.Kind()
	node := NewNode(name, NoNamespace)
	node.Kind = kind

	switch kind {
	case KindNull:
		node.setAttr(NSXSI, AttrNil, "true")

	case KindString, KindInt, KindLong, KindBoolean, KindDate, KindFloat:
		node.setAttr(NSXSI, AttrType, kind.xsdType())
		node.Text, node.HasText = v.text, true

	case KindStringArray:
		for _, s := range v.strs {
			item := NewTextNode("item", NoNamespace, s)
			item.Kind = KindString
			item.setAttr(NSXSI, AttrType, KindString.xsdType())
			node.appendChild(item)
		}
		stampArray(node, NSXSD.Qualify("string"))

	case KindGenericArray:
		for i, it := range v.items {
			child, err := encodeValue("item", indexPath(path, i), it)
			if err != nil {
				return nil, err
			}
			node.appendChild(child)
		}
		stampArray(node, NSXSD.Qualify("ur-type"))

	case KindMap:
		node.setAttr(NSXSI, AttrType, typeMap)
		for _, ent := range v.entries {
			item, err := encodeEntry(path, ent)
			if err != nil {
				return nil, err
			}
			node.appendChild(item)
		}

	case KindUnsupported:
		return nil, &SerializationError{
			Node:  name,
			Path:  path,
			Type:  v.typeName,
			Value: truncate(v.text),
		}

	default:
		return nil, &SerializationError{
			Node:  name,
			Path:  path,
			Type:  fmt.Sprintf("soap.Value(%s)", kind),
			Value: truncate(v.text),
		}
	}
	return node, nil
}

// encodeEntry builds <item><key/><value/></item>.
func encodeEntry(path string, ent Entry) (*CallNode, error) {
	key, err := encodeValue("key", path, ent.Key)
	if err != nil {
		return nil, err
	}
	val, err := encodeValue("value", keyPath(path, ent.Key), ent.Value)
	if err != nil {
		return nil, err
	}
	item := NewNode("item", NoNamespace)
	item.appendChild(key)
	item.appendChild(val)
	return item, nil
}
