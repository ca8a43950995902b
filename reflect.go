// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"math/big"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
)

const tagKey = "soap"

var (
	reflectTypeType = reflect.TypeOf((*reflect.Type)(nil)).Elem()
	fieldCache      sync.Map // map[reflect.Type][]field
)

// ValueOf converts an arbitrary Go value into a Value using default limits.
// See Encoder.Encode for the conversion rules.
func ValueOf(v any) (Value, error) {
	c := newConverter(DefaultMaxDepth)
	return c.value("value", "value", v, 0)
}

type visitKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

// converter walks one argument. It is not reused across calls.
type converter struct {
	maxDepth int
	visiting map[visitKey]struct{}
}

func newConverter(maxDepth int) *converter {
	return &converter{
		maxDepth: maxDepth,
		visiting: make(map[visitKey]struct{}),
	}
}

func (c *converter) value(name, path string, v any, depth int) (Value, error) {
	if depth > c.maxDepth {
		return Value{}, &StructuralError{Node: name, Path: path, Depth: depth, Err: ErrTooDeep}
	}
	if v == nil {
		return Null(), nil
	}
	if x, ok := v.(Value); ok {
		return x, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
	}

	switch x := v.(type) {
	case time.Time:
		return Date(x), nil
	case apd.Decimal:
		return Decimal(x.Text('f')), nil
	case *apd.Decimal:
		return Decimal(x.Text('f')), nil
	case *big.Float:
		return Decimal(x.Text('f', -1)), nil
	case *OrderedMap:
		return c.orderedMap(name, path, x, depth)
	case OrderedMap:
		return c.orderedMap(name, path, &x, depth)
	case iter.Seq[any]:
		return c.seq(name, path, x, depth)
	case func(func(any) bool):
		return c.seq(name, path, x, depth)
	}

	switch rv.Kind() {
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Int(int32(rv.Int())), nil
	case reflect.Int, reflect.Int64:
		i := rv.Int()
		if rv.Kind() == reflect.Int && i >= math.MinInt32 && i <= math.MaxInt32 {
			return Int(int32(i)), nil
		}
		return Long(i), nil
	case reflect.Uint8, reflect.Uint16:
		return Int(int32(rv.Uint())), nil
	case reflect.Uint, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if rv.Kind() != reflect.Uint64 && u <= math.MaxInt32 {
			return Int(int32(u)), nil
		}
		return Value{kind: KindLong, text: strconv.FormatUint(u, 10)}, nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Float32:
		return Value{kind: KindFloat, text: formatFloat(rv.Float(), 32)}, nil
	case reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.String {
			strs := make([]string, rv.Len())
			for i := range strs {
				strs[i] = rv.Index(i).String()
			}
			return Strings(strs...), nil
		}
		return c.slice(name, path, rv, depth)
	case reflect.Map:
		return c.goMap(name, path, rv, depth)
	}

	if a, ok := v.(ArrayLike); ok {
		return c.arrayLike(name, path, a, depth)
	}
	if m, ok := v.(MapLike); ok {
		return c.mapLike(name, path, m, depth)
	}
	if d, ok := v.(Describable); ok {
		return c.record(name, path, d, depth)
	}

	switch rv.Kind() {
	case reflect.Pointer:
		leave, err := c.enter(name, path, rv, depth)
		if err != nil {
			return Value{}, err
		}
		defer leave()
		return c.value(name, path, rv.Elem().Interface(), depth)
	case reflect.Struct:
		if fields := structFields(rv.Type()); len(fields) > 0 {
			return c.structValue(name, path, rv, fields, depth)
		}
	}
	return unsupported(rv.Type().String(), fmt.Sprintf("%v", v)), nil
}

// enter marks a reference as being on the current path.
func (c *converter) enter(name, path string, rv reflect.Value, depth int) (func(), error) {
	key := visitKey{ptr: rv.Pointer(), typ: rv.Type()}
	if rv.Kind() == reflect.Slice {
		key.len = rv.Len()
	}
	if _, seen := c.visiting[key]; seen {
		return nil, &StructuralError{Node: name, Path: path, Depth: depth, Err: ErrCycle}
	}
	c.visiting[key] = struct{}{}
	return func() { delete(c.visiting, key) }, nil
}

func (c *converter) slice(name, path string, rv reflect.Value, depth int) (Value, error) {
	if rv.Kind() == reflect.Slice {
		leave, err := c.enter(name, path, rv, depth)
		if err != nil {
			return Value{}, err
		}
		defer leave()
	}
	items := make([]Value, rv.Len())
	for i := range items {
		item, err := c.value("item", indexPath(path, i), rv.Index(i).Interface(), depth+1)
		if err != nil {
			return Value{}, err
		}
		items[i] = item
	}
	return Array(items...), nil
}

func (c *converter) seq(name, path string, s iter.Seq[any], depth int) (Value, error) {
	var items []Value
	i := 0
	for e := range s {
		item, err := c.value("item", indexPath(path, i), e, depth+1)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
		i++
	}
	return Array(items...), nil
}

func (c *converter) arrayLike(name, path string, a ArrayLike, depth int) (Value, error) {
	items := make([]Value, a.Len())
	for i := range items {
		item, err := c.value("item", indexPath(path, i), a.Index(i), depth+1)
		if err != nil {
			return Value{}, err
		}
		items[i] = item
	}
	return Array(items...), nil
}

func (c *converter) entry(path string, key, val any, depth int) (Entry, error) {
	k, err := c.value("key", path, key, depth+1)
	if err != nil {
		return Entry{}, err
	}
	p := keyPath(path, k)
	v, err := c.value("value", p, val, depth+1)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: k, Value: v}, nil
}

func (c *converter) orderedMap(name, path string, m *OrderedMap, depth int) (Value, error) {
	leave, err := c.enter(name, path, reflect.ValueOf(m), depth)
	if err != nil {
		return Value{}, err
	}
	defer leave()

	entries := make([]Entry, 0, m.Len())
	m.Range(func(key, val any) bool {
		var e Entry
		e, err = c.entry(path, key, val, depth)
		if err != nil {
			return false
		}
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return Value{}, err
	}
	return Map(entries...), nil
}

func (c *converter) goMap(name, path string, rv reflect.Value, depth int) (Value, error) {
	leave, err := c.enter(name, path, rv, depth)
	if err != nil {
		return Value{}, err
	}
	defer leave()

	// MapIndex cannot find NaN keys, so pairs are taken from the iterator.
	type pair struct{ k, v reflect.Value }
	pairs := make([]pair, 0, rv.Len())
	for it := rv.MapRange(); it.Next(); {
		pairs = append(pairs, pair{it.Key(), it.Value()})
	}
	slices.SortFunc(pairs, func(a, b pair) int { return compareKeys(a.k, b.k) })
	entries := make([]Entry, len(pairs))
	for i, p := range pairs {
		e, err := c.entry(path, p.k.Interface(), p.v.Interface(), depth)
		if err != nil {
			return Value{}, err
		}
		entries[i] = e
	}
	return Map(entries...), nil
}

func (c *converter) mapLike(name, path string, m MapLike, depth int) (Value, error) {
	keys := m.Keys()
	entries := make([]Entry, len(keys))
	for i, k := range keys {
		e, err := c.entry(path, k, m.Get(k), depth)
		if err != nil {
			return Value{}, err
		}
		entries[i] = e
	}
	return Map(entries...), nil
}

func (c *converter) record(name, path string, d Describable, depth int) (Value, error) {
	names := d.PropertyNames()
	entries := make([]Entry, 0, len(names))
	for _, prop := range names {
		val, err := d.Property(prop)
		if err != nil {
			return Value{}, &SerializationError{
				Node:     name,
				Path:     path,
				Type:     fmt.Sprintf("%T", d),
				Property: prop,
				Err:      err,
			}
		}
		if _, isType := val.(reflect.Type); isType {
			continue
		}
		v, err := c.value("value", path+"."+prop, val, depth+1)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, Pair(prop, v))
	}
	return Map(entries...), nil
}

func (c *converter) structValue(name, path string, rv reflect.Value, fields []field, depth int) (Value, error) {
	entries := make([]Entry, 0, len(fields))
	for _, f := range fields {
		fv, err := rv.FieldByIndexErr(f.index)
		if err != nil {
			// nil embedded pointer
			continue
		}
		if f.omitEmpty && fv.IsZero() {
			continue
		}
		v, err := c.value("value", path+"."+f.name, fv.Interface(), depth+1)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, Pair(f.name, v))
	}
	return Map(entries...), nil
}

// field describes one encodable struct field.
type field struct {
	name      string
	index     []int
	omitEmpty bool
}

// structFields returns the cached field list of a struct type: exported
// fields in declaration order, with untagged embedded structs flattened.
func structFields(t reflect.Type) []field {
	if fs, ok := fieldCache.Load(t); ok {
		return fs.([]field)
	}
	fs := appendFields(nil, t, nil, map[reflect.Type]bool{})
	fieldCache.Store(t, fs)
	return fs
}

func appendFields(dst []field, t reflect.Type, index []int, seen map[reflect.Type]bool) []field {
	if seen[t] {
		return dst
	}
	seen[t] = true
	defer delete(seen, t)

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get(tagKey)
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		idx := append(slices.Clone(index), i)

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				dst = appendFields(dst, ft, idx, seen)
				continue
			}
		}
		if !sf.IsExported() || sf.Type == reflectTypeType {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		dst = append(dst, field{
			name:      name,
			index:     idx,
			omitEmpty: opts == "omitempty",
		})
	}
	return dst
}

func compareKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func keyPath(path string, key Value) string {
	if key.Kind().IsScalar() {
		return path + "." + key.Text()
	}
	return path + ".<key>"
}
