// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"errors"
	"math"
	"math/big"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typed(name string, kind ValueKind, typ, text string) *CallNode {
	n := NewTextNode(name, NoNamespace, text)
	n.Kind = kind
	n.Attrs = []Attr{{Namespace: NSXSI, Name: AttrType, Value: typ}}
	return n
}

func arrayNode(name, arrayType string, items ...*CallNode) *CallNode {
	n := NewNode(name, NoNamespace)
	n.Kind = KindGenericArray
	n.Children = items
	n.Attrs = []Attr{
		{Namespace: NSEncoding, Name: AttrArrayType, Value: arrayType},
		{Namespace: NSXSI, Name: AttrType, Value: "SOAP-ENC:Array"},
	}
	return n
}

func mapNode(name string, items ...*CallNode) *CallNode {
	n := NewNode(name, NoNamespace)
	n.Kind = KindMap
	n.Children = items
	n.Attrs = []Attr{{Namespace: NSXSI, Name: AttrType, Value: "ns2:Map"}}
	return n
}

func entryNode(key, value *CallNode) *CallNode {
	n := NewNode("item", NoNamespace)
	n.Children = []*CallNode{key, value}
	return n
}

func encode(t *testing.T, name string, v any) *CallNode {
	t.Helper()
	n, err := NewEncoder().Encode(name, v)
	require.NoError(t, err)
	return n
}

type (
	myString string
	myInt    int16
)

func TestEncodeScalars(t *testing.T) {
	day := time.Date(2024, 3, 5, 13, 45, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		kind ValueKind
		typ  string
		text string
	}{
		{"string", "hello", KindString, "xsd:string", "hello"},
		{"empty string", "", KindString, "xsd:string", ""},
		{"named string", myString("x"), KindString, "xsd:string", "x"},
		{"int", 42, KindInt, "xsd:int", "42"},
		{"negative int", -7, KindInt, "xsd:int", "-7"},
		{"int8", int8(-8), KindInt, "xsd:int", "-8"},
		{"named int16", myInt(300), KindInt, "xsd:int", "300"},
		{"int32", int32(math.MaxInt32), KindInt, "xsd:int", "2147483647"},
		{"uint8", uint8(255), KindInt, "xsd:int", "255"},
		{"uint16", uint16(65535), KindInt, "xsd:int", "65535"},
		{"uint32 small", uint32(7), KindInt, "xsd:int", "7"},
		{"int beyond int32", math.MaxInt32 + 1, KindLong, "xsd:long", "2147483648"},
		{"int64", int64(1), KindLong, "xsd:long", "1"},
		{"uint32 large", uint32(math.MaxUint32), KindLong, "xsd:long", "4294967295"},
		{"uint64", uint64(math.MaxUint64), KindLong, "xsd:long", "18446744073709551615"},
		{"true", true, KindBoolean, "xsd:boolean", "true"},
		{"false", false, KindBoolean, "xsd:boolean", "false"},
		{"date", day, KindDate, "xsd:string", "2024-03-05"},
		{"date pointer", &day, KindDate, "xsd:string", "2024-03-05"},
		{"float", 1.5, KindFloat, "xsd:float", "1.5"},
		{"float no exponent", 1e21, KindFloat, "xsd:float", "1000000000000000000000"},
		{"float32", float32(0.1), KindFloat, "xsd:float", "0.1"},
		{"nan", math.NaN(), KindFloat, "xsd:float", "NaN"},
		{"inf", math.Inf(1), KindFloat, "xsd:float", "INF"},
		{"-inf", math.Inf(-1), KindFloat, "xsd:float", "-INF"},
		{"apd", *apd.New(12345, -2), KindFloat, "xsd:float", "123.45"},
		{"apd pointer", apd.New(5, 3), KindFloat, "xsd:float", "5000"},
		{"big float", big.NewFloat(0.25), KindFloat, "xsd:float", "0.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encode(t, "v", tt.in)
			if diff := cmp.Diff(typed("v", tt.kind, tt.typ, tt.text), got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			assert.Empty(t, got.Children)
		})
	}
}

func TestEncodeDateKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 2024-03-06 02:00 UTC is still the 5th in UTC-5
	d := time.Date(2024, 3, 6, 2, 0, 0, 0, time.UTC).In(loc)
	assert.Equal(t, "2024-03-05", encode(t, "d", d).Text)
}

func TestEncodeNull(t *testing.T) {
	var (
		nilPtr   *int
		nilSlice []int
		nilMap   map[string]int
		nilIface error
	)
	for name, v := range map[string]any{
		"nil":       nil,
		"nil ptr":   nilPtr,
		"nil slice": nilSlice,
		"nil map":   nilMap,
		"nil iface": nilIface,
		"zero":      Value{},
	} {
		t.Run(name, func(t *testing.T) {
			n := encode(t, "x", v)
			assert.Equal(t, KindNull, n.Kind)
			assert.True(t, n.IsNil())
			assert.False(t, n.HasText)
			assert.Empty(t, n.Text)
			assert.Empty(t, n.Children)
			assert.Equal(t, []Attr{{Namespace: NSXSI, Name: AttrNil, Value: "true"}}, n.Attrs)
		})
	}
}

func TestEncodeStringArray(t *testing.T) {
	got := encode(t, "skus", []string{"a", "b"})
	want := arrayNode("skus", "xsd:string[2]",
		typed("item", KindString, "xsd:string", "a"),
		typed("item", KindString, "xsd:string", "b"),
	)
	want.Kind = KindStringArray
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	arr := encode(t, "skus", [3]myString{"x", "y", "z"})
	assert.Equal(t, "xsd:string[3]", arr.ArrayType())
	assert.Equal(t, 3, arr.Len())

	empty := encode(t, "skus", []string{})
	assert.Equal(t, "xsd:string[0]", empty.ArrayType())
	assert.Empty(t, empty.Children)
}

func TestEncodeSequenceLengths(t *testing.T) {
	for _, n := range []int{0, 1, 5, 100} {
		in := make([]any, n)
		for i := range in {
			in[i] = i
		}
		got := encode(t, "seq", in)
		assert.Equal(t, KindGenericArray, got.Kind)
		assert.Equal(t, arrayTypeOf("xsd:ur-type", n), got.ArrayType())
		require.Len(t, got.Children, n)
		for i, c := range got.Children {
			assert.Equal(t, "item", c.Name)
			assert.Equal(t, itoa(i), c.Text)
		}
	}
}

func itoa(i int) string {
	return Int(int32(i)).Text()
}

type foreignArray struct{ items []any }

func (a *foreignArray) Len() int        { return len(a.items) }
func (a *foreignArray) Index(i int) any { return a.items[i] }

type foreignObject struct {
	keys []string
	vals map[string]any
}

func (o *foreignObject) Keys() []string     { return o.keys }
func (o *foreignObject) Get(key string) any { return o.vals[key] }

func TestEncodeForeignContainers(t *testing.T) {
	arr := encode(t, "a", &foreignArray{items: []any{"x", 1}})
	assert.Equal(t, "xsd:ur-type[2]", arr.ArrayType())
	assert.Equal(t, "xsd:string", arr.Children[0].Type())
	assert.Equal(t, "xsd:int", arr.Children[1].Type())

	obj := encode(t, "o", &foreignObject{
		keys: []string{"z", "a"},
		vals: map[string]any{"z": true, "a": nil},
	})
	assert.Equal(t, KindMap, obj.Kind)
	require.Len(t, obj.Children, 2)
	assert.Equal(t, "z", obj.Children[0].Child("key").Text)
	assert.Equal(t, "a", obj.Children[1].Child("key").Text)
	assert.True(t, obj.Children[1].Child("value").IsNil())

	seq := encode(t, "s", func(yield func(any) bool) {
		for _, v := range []any{1, "two"} {
			if !yield(v) {
				return
			}
		}
	})
	assert.Equal(t, "xsd:ur-type[2]", seq.ArrayType())
}

func TestEncodeNestedExample(t *testing.T) {
	args := NewOrderedMap().
		Set("ids", []int{1, 2, 3}).
		Set("active", true)

	want := mapNode("args",
		entryNode(
			typed("key", KindString, "xsd:string", "ids"),
			arrayNode("value", "xsd:ur-type[3]",
				typed("item", KindInt, "xsd:int", "1"),
				typed("item", KindInt, "xsd:int", "2"),
				typed("item", KindInt, "xsd:int", "3"),
			),
		),
		entryNode(
			typed("key", KindString, "xsd:string", "active"),
			typed("value", KindBoolean, "xsd:boolean", "true"),
		),
	)
	if diff := cmp.Diff(want, encode(t, "args", args)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeMapRoundTrip(t *testing.T) {
	in := map[string]any{"b": "x", "a": 1, "c": []string{"q"}, "d": nil}
	got := encode(t, "m", in)
	require.Len(t, got.Children, len(in))

	keys := make([]string, 0, len(in))
	for _, item := range got.Children {
		require.Len(t, item.Children, 2)
		assert.Equal(t, "key", item.Children[0].Name)
		assert.Equal(t, "value", item.Children[1].Name)
		keys = append(keys, item.Children[0].Text)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)

	plain, err := PlainValue(got)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": "x", "c": []any{"q"}, "d": nil}, plain)
}

func TestEncodeMapNonStringKeys(t *testing.T) {
	got := encode(t, "m", map[int]string{10: "ten", 2: "two"})
	require.Len(t, got.Children, 2)
	assert.Equal(t, "2", got.Children[0].Child("key").Text)
	assert.Equal(t, "xsd:int", got.Children[0].Child("key").Type())

	plain, err := PlainValue(got)
	require.NoError(t, err)
	assert.Equal(t, []KeyValue{{int64(2), "two"}, {int64(10), "ten"}}, plain)
}

func TestEncodeOrderedMapKeepsInsertionOrder(t *testing.T) {
	m := NewOrderedMap().Set("z", 1).Set("a", 2).Set("m", 3).Set("z", 4)
	got := encode(t, "m", m)
	var keys, vals []string
	for _, item := range got.Children {
		keys = append(keys, item.Child("key").Text)
		vals = append(vals, item.Child("value").Text)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)
	assert.Equal(t, []string{"4", "2", "3"}, vals)

	byValue := encode(t, "m", *NewOrderedMap().Set("b", 1).Set("a", 2))
	assert.Equal(t, KindMap, byValue.Kind)
	require.Len(t, byValue.Children, 2)
	assert.Equal(t, "b", byValue.Children[0].Child("key").Text)
}

func TestEncodeMapNaNKeys(t *testing.T) {
	got := encode(t, "m", map[float64]string{math.NaN(): "x", 1: "y"})
	require.Len(t, got.Children, 2)
	assert.Equal(t, "NaN", got.Children[0].Child("key").Text)
	assert.Equal(t, "x", got.Children[0].Child("value").Text)
	assert.Equal(t, "1", got.Children[1].Child("key").Text)
	assert.Equal(t, "y", got.Children[1].Child("value").Text)

	mixed := encode(t, "m", map[any]any{math.NaN(): 1, "k": 2})
	assert.Len(t, mixed.Children, 2)
}

type Address struct {
	Street string `soap:"street"`
	City   string `soap:"city,omitempty"`
}

type Audit struct {
	CreatedBy string `soap:"created_by"`
}

type Customer struct {
	Audit
	ID       int          `soap:"customer_id"`
	Email    string       `soap:"email"`
	Password string       `soap:"-"`
	Kind     reflect.Type `soap:"kind"`
	Address  *Address     `soap:"address"`
	Tags     []string     `soap:"tags,omitempty"`
	internal int
}

func TestEncodeStruct(t *testing.T) {
	c := &Customer{
		Audit:    Audit{CreatedBy: "admin"},
		ID:       7,
		Email:    "bob@example.com",
		Password: "hunter2",
		Kind:     reflect.TypeOf(Customer{}),
		Address:  &Address{Street: "Main St"},
		internal: 1,
	}
	got := encode(t, "customer", c)
	assert.Equal(t, KindMap, got.Kind)
	assert.Equal(t, "ns2:Map", got.Type())

	var keys []string
	for _, item := range got.Children {
		keys = append(keys, item.Child("key").Text)
	}
	assert.Equal(t, []string{"created_by", "customer_id", "email", "address"}, keys)

	addr := got.Children[3].Child("value")
	assert.Equal(t, KindMap, addr.Kind)
	require.Len(t, addr.Children, 1)
	assert.Equal(t, "street", addr.Children[0].Child("key").Text)

	// nil struct pointer fields are null
	c.Address = nil
	got = encode(t, "customer", c)
	assert.True(t, got.Children[3].Child("value").IsNil())
}

type product struct {
	props map[string]any
	order []string
	fail  string
}

func (p *product) PropertyNames() []string { return p.order }

func (p *product) Property(name string) (any, error) {
	if name == p.fail {
		return nil, errors.New("lazy load failed")
	}
	return p.props[name], nil
}

func TestEncodeDescribable(t *testing.T) {
	p := &product{
		order: []string{"sku", "type", "price"},
		props: map[string]any{
			"sku":   "abc",
			"type":  reflect.TypeOf(0),
			"price": 9.5,
		},
	}
	got := encode(t, "product", p)
	require.Len(t, got.Children, 2)
	assert.Equal(t, "sku", got.Children[0].Child("key").Text)
	assert.Equal(t, "price", got.Children[1].Child("key").Text)
	assert.Equal(t, "9.5", got.Children[1].Child("value").Text)

	p.fail = "price"
	_, err := NewEncoder().Encode("product", p)
	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "price", serr.Property)
	assert.Equal(t, "lazy load failed", errors.Unwrap(err).Error())
	assert.NotErrorIs(t, err, ErrUnsupported)
}

func TestEncodeUnsupported(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tests := []struct {
		name string
		in   any
		typ  string
	}{
		{"socket", client, "net.pipe"},
		{"channel", make(chan int), "chan int"},
		{"func", func() {}, "func()"},
		{"complex", complex(1, 2), "complex128"},
		{"empty struct", struct{}{}, "struct {}"},
		{"unexported only", struct{ x int }{1}, "struct { x int }"},
		{"mutex", &sync.Mutex{}, "sync.Mutex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewEncoder().Encode("arg", tt.in)
			assert.Nil(t, n)
			require.ErrorIs(t, err, ErrUnsupported)

			var serr *SerializationError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.typ, serr.Type)
			assert.Equal(t, "arg", serr.Node)
			assert.Contains(t, err.Error(), tt.typ)
		})
	}
}

func TestEncodeUnsupportedNestedAbortsWholeTree(t *testing.T) {
	n, err := NewEncoder().Encode("args", map[string]any{
		"ok":  "fine",
		"bad": []any{1, make(chan int)},
	})
	assert.Nil(t, n)
	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "item", serr.Node)
	assert.Equal(t, "args.bad[1]", serr.Path)
}

func TestSerializationErrorTruncatesValue(t *testing.T) {
	type opaque struct{ s string }
	_, err := NewEncoder().Encode("v", opaque{s: strings.Repeat("x", 200)})
	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
	assert.LessOrEqual(t, len(serr.Value), maxValueText+3)
}

type node struct {
	Name string
	Next *node
}

func TestEncodeCycles(t *testing.T) {
	t.Run("pointer", func(t *testing.T) {
		a := &node{Name: "a"}
		a.Next = &node{Name: "b", Next: a}
		_, err := NewEncoder().Encode("n", a)
		require.ErrorIs(t, err, ErrCycle)
		var serr *StructuralError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "n.Next.Next", serr.Path)
	})
	t.Run("map", func(t *testing.T) {
		m := map[string]any{}
		m["self"] = m
		_, err := NewEncoder().Encode("m", m)
		require.ErrorIs(t, err, ErrCycle)
	})
	t.Run("slice", func(t *testing.T) {
		s := make([]any, 1)
		s[0] = s
		_, err := NewEncoder().Encode("s", s)
		require.ErrorIs(t, err, ErrCycle)
	})
	t.Run("ordered map", func(t *testing.T) {
		m := NewOrderedMap()
		m.Set("self", m)
		_, err := NewEncoder().Encode("m", m)
		require.ErrorIs(t, err, ErrCycle)
	})
	t.Run("shared but acyclic", func(t *testing.T) {
		shared := &Address{Street: "x"}
		got := encode(t, "v", []any{shared, shared})
		assert.Equal(t, 2, got.Len())
	})
}

func TestEncodeDepthLimit(t *testing.T) {
	var v any = "leaf"
	for range 10 {
		v = []any{v}
	}
	_, err := NewEncoder(WithMaxDepth(5)).Encode("deep", v)
	require.ErrorIs(t, err, ErrTooDeep)

	_, err = NewEncoder(WithMaxDepth(10)).Encode("deep", v)
	require.NoError(t, err)
}

func TestEncodeValuePassthrough(t *testing.T) {
	v := Map(Pair("qty", Long(3)), Pair("skus", Strings("a")))
	got, err := NewEncoder().EncodeValue("args", v)
	require.NoError(t, err)
	assert.Equal(t, "xsd:long", got.Children[0].Child("value").Type())
	assert.Equal(t, "xsd:string[1]", got.Children[1].Child("value").ArrayType())

	_, err = NewEncoder().EncodeValue("x", unsupported("weird", "?"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf([]any{"a", 1})
	require.NoError(t, err)
	assert.Equal(t, KindGenericArray, v.Kind())
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, KindString, v.Items()[0].Kind())

	v, err = ValueOf(make(chan int))
	require.NoError(t, err)
	assert.Equal(t, KindUnsupported, v.Kind())
}

func TestEncoderConcurrentUse(t *testing.T) {
	enc := NewEncoder()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := enc.Encode("c", &Customer{ID: i, Email: "x"})
			if assert.NoError(t, err) {
				// created_by, customer_id, email, address
				assert.Equal(t, 4, n.Len())
			}
		}()
	}
	wg.Wait()
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		attrs []Attr
		kids  int
		want  ValueKind
	}{
		{[]Attr{{Name: AttrNil, Value: "1"}}, 0, KindNull},
		{[]Attr{{Name: AttrType, Value: "xsd:string"}}, 0, KindString},
		{[]Attr{{Name: AttrType, Value: "xs:int"}}, 0, KindInt},
		{[]Attr{{Name: AttrType, Value: "xsd:long"}}, 0, KindLong},
		{[]Attr{{Name: AttrType, Value: "xsd:boolean"}}, 0, KindBoolean},
		{[]Attr{{Name: AttrType, Value: "xsd:double"}}, 0, KindFloat},
		{[]Attr{{Name: AttrType, Value: "ns2:Map"}}, 1, KindMap},
		{[]Attr{{Name: AttrType, Value: "SOAP-ENC:Struct"}}, 1, KindMap},
		{[]Attr{{Name: AttrType, Value: "SOAP-ENC:Array"}, {Name: AttrArrayType, Value: "xsd:string[2]"}}, 2, KindStringArray},
		{[]Attr{{Name: AttrType, Value: "SOAP-ENC:Array"}, {Name: AttrArrayType, Value: "ns2:Map[2]"}}, 2, KindGenericArray},
		{nil, 2, KindMap},
		{nil, 0, KindString},
	}
	for _, tt := range tests {
		n := &CallNode{Name: "x", Attrs: tt.attrs, Children: make([]*CallNode, tt.kids)}
		assert.Equal(t, tt.want, KindOf(n), "%v", tt.attrs)
	}
}
