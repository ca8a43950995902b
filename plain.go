// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"fmt"
	"strconv"
)

// KeyValue is one entry of a decoded map whose keys are not all strings.
type KeyValue struct {
	Key   any
	Value any
}

// PlainValue maps a typed tree back to Go values: nil, string, int64, bool,
// float64, []any, map[string]any, or []KeyValue for maps with non-string
// keys. Dates come back as strings. Elements with named children that are
// not key/value items decode as map[string]any keyed by child name.
func PlainValue(n *CallNode) (any, error) {
	kind := n.Kind
	if kind == 0 {
		kind = KindOf(n)
	}
	switch kind {
	case KindNull:
		return nil, nil
	case KindString, KindDate:
		return n.Text, nil
	case KindInt, KindLong:
		i, err := strconv.ParseInt(n.Text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("soap: bad integer in %q: %w", n.Name, err)
		}
		return i, nil
	case KindBoolean:
		// PHP peers send 1/0
		b, err := strconv.ParseBool(n.Text)
		if err != nil {
			return nil, fmt.Errorf("soap: bad boolean in %q: %w", n.Name, err)
		}
		return b, nil
	case KindFloat:
		f, err := strconv.ParseFloat(n.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("soap: bad float in %q: %w", n.Name, err)
		}
		return f, nil
	case KindStringArray, KindGenericArray:
		items := make([]any, len(n.Children))
		for i, c := range n.Children {
			v, err := PlainValue(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case KindMap:
		return plainMap(n)
	}
	return nil, fmt.Errorf("soap: cannot decode %s node %q", kind, n.Name)
}

func plainMap(n *CallNode) (any, error) {
	var (
		pairs     []KeyValue
		stringKey = true
	)
	for _, item := range n.Children {
		key, val := item.Child("key"), item.Child("value")
		if item.Name != "item" || key == nil || val == nil {
			// struct-style element: the child name is the key
			v, err := PlainValue(item)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, KeyValue{Key: item.Name, Value: v})
			continue
		}
		k, err := PlainValue(key)
		if err != nil {
			return nil, err
		}
		v, err := PlainValue(val)
		if err != nil {
			return nil, err
		}
		if _, ok := k.(string); !ok {
			stringKey = false
		}
		pairs = append(pairs, KeyValue{Key: k, Value: v})
	}
	if !stringKey {
		return pairs, nil
	}
	m := make(map[string]any, len(pairs))
	for _, p := range pairs {
		m[p.Key.(string)] = p.Value
	}
	return m, nil
}
