// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Fault codes sent by Mux.
const (
	FaultClient = "Client"
	FaultServer = "Server"
)

// Mux dispatches decoded calls to handlers by call name and encodes their
// results as <call>Response envelopes. It serves both HTTP and frame
// connections.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	enc      *Encoder
	logger   *zap.Logger
}

// NewMux returns an empty Mux. A nil logger disables logging.
func NewMux(logger *zap.Logger) *Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mux{
		handlers: make(map[string]Handler),
		enc:      NewEncoder(),
		logger:   logger,
	}
}

// Handle registers h for call, replacing any earlier handler.
func (m *Mux) Handle(call string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[call] = h
}

func (m *Mux) handler(call string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[call]
	return h, ok
}

// ServeEnvelope answers one request envelope. Faults are returned as fault
// envelopes; the error is only set when the reply cannot be rendered.
func (m *Mux) ServeEnvelope(ctx context.Context, data []byte) ([]byte, error) {
	body, _ := m.dispatch(ctx, bytes.NewReader(data))
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ServeHTTP implements http.Handler. Faults are sent with status 500.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, fault := m.dispatch(r.Context(), r.Body)

	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, body); err != nil {
		m.logger.Error("failed to render response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", XMLCodec{}.ContentType())
	if fault {
		w.WriteHeader(http.StatusInternalServerError)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		m.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (m *Mux) dispatch(ctx context.Context, r io.Reader) (*CallNode, bool) {
	req, err := ReadEnvelope(r)
	if err != nil {
		return FaultNode(&Fault{Code: FaultClient, String: err.Error()}), true
	}
	call := req.Body
	h, ok := m.handler(call.Name)
	if !ok {
		m.logger.Warn("unknown call", zap.String("method", call.Name))
		return FaultNode(&Fault{Code: FaultClient, String: fmt.Sprintf("unknown call %q", call.Name)}), true
	}

	result, err := h(ctx, call)
	if err != nil {
		var fault *Fault
		if !errors.As(err, &fault) {
			fault = &Fault{Code: FaultServer, String: err.Error()}
		}
		m.logger.Debug("call failed", zap.String("method", call.Name), zap.Error(err))
		return FaultNode(fault), true
	}

	resp, err := ResponseNode(m.enc, call.Name, result)
	if err != nil {
		return FaultNode(&Fault{Code: FaultServer, String: err.Error()}), true
	}
	return resp, false
}

// ResponseNode builds <ns1:callResponse> holding result as <callReturn>.
func ResponseNode(enc *Encoder, call string, result any) (*CallNode, error) {
	ret, err := enc.Encode(call+"Return", result)
	if err != nil {
		return nil, err
	}
	root := NewNode(call+"Response", NSMagento)
	root.Declared = callNamespaces
	root.appendChild(ret)
	return root, nil
}

// FaultNode builds a SOAP-ENV:Fault element for f.
func FaultNode(f *Fault) *CallNode {
	n := NewNode("Fault", NSEnvelope)
	n.appendChild(NewTextNode("faultcode", NoNamespace, f.Code))
	n.appendChild(NewTextNode("faultstring", NoNamespace, f.String))
	return n
}

// CallArgs returns the args element of a call, or nil.
func CallArgs(call *CallNode) *CallNode {
	return call.Child(nodeArgs)
}

// NewEchoMux returns a Mux that accepts any credentials and answers every
// call with its own arguments. Useful for smoke tests of a client setup.
func NewEchoMux(logger *zap.Logger, sessionID string) *Mux {
	m := NewMux(logger)
	m.Handle(CallLogin, func(ctx context.Context, call *CallNode) (any, error) {
		if user := call.Child(nodeUsername); user == nil || user.Text == "" {
			return nil, &Fault{Code: "2", String: "Access denied."}
		}
		return sessionID, nil
	})
	m.Handle(CallMethod, func(ctx context.Context, call *CallNode) (any, error) {
		if err := checkSession(call, sessionID); err != nil {
			return nil, err
		}
		args := CallArgs(call)
		if args == nil {
			return nil, nil
		}
		return echoValue(args)
	})
	m.Handle(CallMulti, func(ctx context.Context, call *CallNode) (any, error) {
		if err := checkSession(call, sessionID); err != nil {
			return nil, err
		}
		calls := call.Child(nodeCalls)
		if calls == nil {
			return []any{}, nil
		}
		out := make([]any, 0, calls.Len())
		for _, inv := range calls.Children {
			if inv.Len() < 2 {
				out = append(out, nil)
				continue
			}
			v, err := echoValue(inv.Children[1])
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	})
	m.Handle(CallLogout, func(ctx context.Context, call *CallNode) (any, error) {
		return checkSession(call, sessionID) == nil, nil
	})
	return m
}

// echoValue decodes n so that encoding the result yields the same shape.
// Maps with non-string keys come back from PlainValue as []KeyValue and
// are turned into an OrderedMap again.
func echoValue(n *CallNode) (any, error) {
	v, err := PlainValue(n)
	if err != nil {
		return nil, err
	}
	return keyedToMap(v), nil
}

func keyedToMap(v any) any {
	switch x := v.(type) {
	case []KeyValue:
		m := NewOrderedMap()
		for _, kv := range x {
			m.Set(kv.Key, keyedToMap(kv.Value))
		}
		return m
	case []any:
		for i := range x {
			x[i] = keyedToMap(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = keyedToMap(x[k])
		}
	}
	return v
}

func checkSession(call *CallNode, sessionID string) error {
	if id := call.Child(nodeSessionID); id == nil || id.Text != sessionID {
		return &Fault{Code: "5", String: "Session expired. Try to relogin."}
	}
	return nil
}
