// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags how a node's content is interpreted by the remote peer.
type ValueKind uint8

// The zero ValueKind marks structural nodes (call roots, map items) that carry
// no value of their own.
const (
	_ ValueKind = iota
	KindNull
	KindString
	KindInt
	KindLong
	KindBoolean
	KindDate
	KindFloat
	KindStringArray
	KindGenericArray
	KindMap
	KindUnsupported
)

var kindNames = [...]string{
	0:                "none",
	KindNull:         "null",
	KindString:       "string",
	KindInt:          "int",
	KindLong:         "long",
	KindBoolean:      "boolean",
	KindDate:         "date",
	KindFloat:        "float",
	KindStringArray:  "string-array",
	KindGenericArray: "array",
	KindMap:          "map",
	KindUnsupported:  "unsupported",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "ValueKind(" + strconv.Itoa(int(k)) + ")"
}

// IsScalar reports whether nodes of this kind are text leaves.
func (k ValueKind) IsScalar() bool {
	switch k {
	case KindString, KindInt, KindLong, KindBoolean, KindDate, KindFloat:
		return true
	}
	return false
}

// IsArray reports whether nodes of this kind carry an arrayType attribute.
func (k ValueKind) IsArray() bool {
	return k == KindStringArray || k == KindGenericArray
}

// Attribute names. These must survive into any wire encoding unchanged.
const (
	AttrType      = "type"
	AttrArrayType = "arrayType"
	AttrNil       = "nil"
)

// xsdType is the xsi:type value for scalar kinds.
func (k ValueKind) xsdType() string {
	switch k {
	case KindString, KindDate:
		return NSXSD.Qualify("string")
	case KindInt:
		return NSXSD.Qualify("int")
	case KindLong:
		return NSXSD.Qualify("long")
	case KindBoolean:
		return NSXSD.Qualify("boolean")
	case KindFloat:
		return NSXSD.Qualify("float")
	}
	return ""
}

// typeArray is the xsi:type value shared by all array nodes.
var typeArray = NSEncoding.Qualify("Array")

// typeMap is the xsi:type value of map nodes.
var typeMap = NSApacheSOAP.Qualify("Map")

func arrayTypeOf(elem string, n int) string {
	return fmt.Sprintf("%s[%d]", elem, n)
}

// stampArray marks n as an array of n.Len() elements of type elem.
func stampArray(n *CallNode, elem string) {
	n.setAttr(NSEncoding, AttrArrayType, arrayTypeOf(elem, n.Len()))
	n.setAttr(NSXSI, AttrType, typeArray)
}

// KindOf recovers the ValueKind of a node from its wire attributes, for
// trees that did not come from the Encoder. Type prefixes are ignored since
// peers choose their own.
func KindOf(n *CallNode) ValueKind {
	if n.IsNil() {
		return KindNull
	}
	switch localName(n.Type()) {
	case "string":
		return KindString
	case "int", "short", "byte", "integer":
		return KindInt
	case "long":
		return KindLong
	case "boolean":
		return KindBoolean
	case "float", "double", "decimal":
		return KindFloat
	case "Map", "Struct":
		return KindMap
	case "Array":
		if strings.HasPrefix(localName(n.ArrayType()), "string[") {
			return KindStringArray
		}
		return KindGenericArray
	}
	if len(n.Children) > 0 {
		return KindMap
	}
	return KindString
}

func localName(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}
