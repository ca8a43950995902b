// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"strconv"
	"time"
)

// DateLayout is the only date format the remote peer accepts. The time of
// day is dropped.
const DateLayout = "2006-01-02"

// Value is the encodable form of an argument. It is a closed variant over
// ValueKind; use ValueOf to build one from an arbitrary Go value.
type Value struct {
	kind    ValueKind
	text    string
	strs    []string
	items   []Value
	entries []Entry

	// set for KindUnsupported
	typeName string
}

// Entry is one key/value pair of a map Value.
type Entry struct {
	Key   Value
	Value Value
}

// Kind returns the variant tag. The zero Value is null.
func (v Value) Kind() ValueKind {
	if v.kind == 0 {
		return KindNull
	}
	return v.kind
}

// Text returns the canonical text of a scalar value.
func (v Value) Text() string { return v.text }

// Len returns the number of elements or entries of a composite value.
func (v Value) Len() int {
	switch v.kind {
	case KindStringArray:
		return len(v.strs)
	case KindGenericArray:
		return len(v.items)
	case KindMap:
		return len(v.entries)
	}
	return 0
}

// Items returns the elements of a generic array.
func (v Value) Items() []Value { return v.items }

// Strings returns the elements of a string array.
func (v Value) Strings() []string { return v.strs }

// Entries returns the entries of a map.
func (v Value) Entries() []Entry { return v.entries }

// Null is the nil value, encoded with xsi:nil.
func Null() Value { return Value{kind: KindNull} }

// String is an xsd:string value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Int is an xsd:int value.
func Int(i int32) Value {
	return Value{kind: KindInt, text: strconv.FormatInt(int64(i), 10)}
}

// Long is an xsd:long value.
func Long(i int64) Value {
	return Value{kind: KindLong, text: strconv.FormatInt(i, 10)}
}

// Bool is an xsd:boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBoolean, text: strconv.FormatBool(b)}
}

// Date truncates t to its calendar day in t's own location.
func Date(t time.Time) Value {
	return Value{kind: KindDate, text: t.Format(DateLayout)}
}

// Float formats f with the shortest decimal representation that round trips.
func Float(f float64) Value {
	return Value{kind: KindFloat, text: formatFloat(f, 64)}
}

// Decimal wraps an already canonical decimal string.
func Decimal(text string) Value {
	return Value{kind: KindFloat, text: text}
}

// Strings is an array of xsd:string elements.
func Strings(s ...string) Value {
	return Value{kind: KindStringArray, strs: s}
}

// Array is an array of mixed values.
func Array(items ...Value) Value {
	return Value{kind: KindGenericArray, items: items}
}

// Map is a key/value map kept in the given entry order.
func Map(entries ...Entry) Value {
	return Value{kind: KindMap, entries: entries}
}

// Pair is shorthand for a string keyed entry.
func Pair(key string, v Value) Entry {
	return Entry{Key: String(key), Value: v}
}

func unsupported(typeName, text string) Value {
	return Value{kind: KindUnsupported, typeName: typeName, text: text}
}

func formatFloat(f float64, bits int) string {
	switch s := strconv.FormatFloat(f, 'f', -1, bits); s {
	case "+Inf":
		return "INF"
	case "-Inf":
		return "-INF"
	default:
		return s
	}
}

// Describable is implemented by record types that expose their properties
// explicitly instead of through struct reflection.
type Describable interface {
	PropertyNames() []string
	Property(name string) (any, error)
}

// ArrayLike is a foreign ordered container with numeric indices.
type ArrayLike interface {
	Len() int
	Index(i int) any
}

// MapLike is a foreign container of named members.
type MapLike interface {
	Keys() []string
	Get(key string) any
}

// OrderedMap is a map that encodes its entries in insertion order. It may be
// passed by value or by pointer.
type OrderedMap struct {
	keys   []any
	values map[any]any
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[any]any)}
}

// Set adds or replaces key. Replacing keeps the original position. Keys must
// be comparable.
func (m *OrderedMap) Set(key, value any) *OrderedMap {
	if m.values == nil {
		m.values = make(map[any]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return m
}

// Get returns the value stored under key.
func (m *OrderedMap) Get(key any) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int { return len(m.keys) }

// Range calls f for each entry in insertion order until f returns false.
func (m *OrderedMap) Range(f func(key, value any) bool) {
	for _, k := range m.keys {
		if !f(k, m.values[k]) {
			return
		}
	}
}
