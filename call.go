// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import "reflect"

// Call names understood by the remote peer.
const (
	CallLogin  = "login"
	CallMethod = "call"
	CallMulti  = "multiCall"
	CallLogout = "endSession"
)

const (
	nodeSessionID    = "sessionId"
	nodeResourcePath = "resourcePath"
	nodeArgs         = "args"
	nodeCalls        = "calls"
	nodeOptions      = "options"
	nodeUsername     = "username"
	nodeAPIKey       = "apiKey"
)

// callNamespaces are declared on every call and multiCall root.
var callNamespaces = []Namespace{NSApacheSOAP, NSXSI, NSXSD, NSEncodingAttr}

// Invocation is one entry of a multiCall.
type Invocation struct {
	ResourcePath string
	Args         any
}

// CallBuilder constructs the root nodes of remote calls.
type CallBuilder struct {
	enc        *Encoder
	legacyArgs bool
}

// BuilderOption configures a CallBuilder.
type BuilderOption func(*CallBuilder)

// WithEncoder sets the Encoder used for argument payloads.
func WithEncoder(e *Encoder) BuilderOption {
	return func(b *CallBuilder) { b.enc = e }
}

// WithLegacyArgsStamping makes Call stamp keyed-mapping arguments with
// SOAP-ENC:Array and ns2:Map[N] on top of the regular map encoding. Older
// gateways expect this; by default args maps are encoded like any other map.
func WithLegacyArgsStamping() BuilderOption {
	return func(b *CallBuilder) { b.legacyArgs = true }
}

// NewCallBuilder returns a CallBuilder with the given options applied.
func NewCallBuilder(opts ...BuilderOption) *CallBuilder {
	b := &CallBuilder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.enc == nil {
		b.enc = NewEncoder()
	}
	return b
}

// Login builds the login call. Credentials are passed through unchecked.
func (b *CallBuilder) Login(user, apiKey string) *CallNode {
	root := NewNode(CallLogin, NSMagento)
	root.appendChild(NewTextNode(nodeUsername, NSMagento, user))
	root.appendChild(NewTextNode(nodeAPIKey, NSMagento, apiKey))
	return root
}

// Logout builds the endSession call.
func (b *CallBuilder) Logout(sessionID string) *CallNode {
	root := NewNode(CallLogout, NSMagento)
	root.appendChild(NewTextNode(nodeSessionID, NSMagento, sessionID))
	return root
}

// Call builds a call of resourcePath with arg as its argument payload.
//
// Sequences become an args array of ns2:Map[N] whose items are encoded one by
// one; everything else is encoded by the Encoder under the name "args".
func (b *CallBuilder) Call(sessionID, resourcePath string, arg any) (*CallNode, error) {
	args, err := b.args(arg)
	if err != nil {
		return nil, err
	}
	root := b.callRoot(CallMethod, sessionID)
	root.appendChild(NewTextNode(nodeResourcePath, NoNamespace, resourcePath))
	root.appendChild(args)
	return root, nil
}

// MultiCall batches several invocations in one request. options may be nil.
func (b *CallBuilder) MultiCall(sessionID string, calls []Invocation, options any) (*CallNode, error) {
	conv := newConverter(b.enc.maxDepth)
	batch := make([]Value, len(calls))
	for i, inv := range calls {
		path := indexPath(nodeCalls, i)
		args, err := conv.value("item", path, inv.Args, 2)
		if err != nil {
			return nil, err
		}
		batch[i] = Array(String(inv.ResourcePath), args)
	}
	callsNode, err := encodeValue(nodeCalls, nodeCalls, Array(batch...))
	if err != nil {
		return nil, err
	}
	optionsNode, err := b.enc.Encode(nodeOptions, options)
	if err != nil {
		return nil, err
	}

	root := b.callRoot(CallMulti, sessionID)
	root.appendChild(callsNode)
	root.appendChild(optionsNode)
	return root, nil
}

func (b *CallBuilder) callRoot(name, sessionID string) *CallNode {
	root := NewNode(name, NSMagento)
	root.Declared = callNamespaces
	root.appendChild(NewTextNode(nodeSessionID, NoNamespace, sessionID))
	return root
}

func (b *CallBuilder) args(arg any) (*CallNode, error) {
	v, err := newConverter(b.enc.maxDepth).value(nodeArgs, nodeArgs, arg, 0)
	if err != nil {
		return nil, err
	}

	var items []Value
	switch v.Kind() {
	case KindStringArray:
		items = make([]Value, len(v.strs))
		for i, s := range v.strs {
			items[i] = String(s)
		}
	case KindGenericArray:
		items = v.items
	default:
		node, err := encodeValue(nodeArgs, nodeArgs, v)
		if err != nil {
			return nil, err
		}
		if b.legacyArgs && isKeyed(arg) {
			stampArray(node, typeMap)
		}
		return node, nil
	}

	node := NewNode(nodeArgs, NoNamespace)
	node.Kind = KindGenericArray
	for i, it := range items {
		child, err := encodeValue("item", indexPath(nodeArgs, i), it)
		if err != nil {
			return nil, err
		}
		node.appendChild(child)
	}
	stampArray(node, typeMap)
	return node, nil
}

// isKeyed reports whether v is a keyed mapping rather than a record.
func isKeyed(v any) bool {
	switch v.(type) {
	case *OrderedMap, MapLike:
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Map
}
