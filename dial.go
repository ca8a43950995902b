// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/soap/session"
)

// ErrNoSession is returned by Call, MultiCall and Logout before Login.
var ErrNoSession = errors.New("soap: not logged in")

// Dial connects to endpoint using the transport selected by opts (HTTP by
// default).
func Dial(ctx context.Context, endpoint string, opts ...DialOption) (Client, error) {
	o := newDialOptions(opts)
	dial, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s (available: %v)", o.transport, AvailableTransports())
	}
	t, err := dial(ctx, endpoint, o)
	if err != nil {
		return nil, err
	}
	return &client{
		endpoint:  endpoint,
		transport: t,
		builder:   NewCallBuilder(o.builder...),
		logger:    o.logger.With(zap.String("transport", o.transport)),
		store:     o.store,
		ttl:       o.ttl,
	}, nil
}

// ServerOption configures Listen
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger *zap.Logger
	mux    *Mux
}

// WithServerLogger sets the server logger
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithMux serves calls with an existing Mux
func WithMux(m *Mux) ServerOption {
	return func(o *serverOptions) { o.mux = m }
}

// Listen creates a frame server on addr.
func Listen(addr string, opts ...ServerOption) (Server, error) {
	o := &serverOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.mux == nil {
		o.mux = NewMux(o.logger)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewFrameServer(listener, o.mux, o.logger), nil
}

// client implements Client on top of a Transport
type client struct {
	endpoint  string
	transport Transport
	builder   *CallBuilder
	logger    *zap.Logger
	store     session.Store
	ttl       time.Duration

	mu        sync.Mutex
	sessionID string
	user      string
}

func (c *client) Login(ctx context.Context, user, apiKey string) (string, error) {
	key := session.Key(c.endpoint, user)
	if c.store != nil {
		id, ok, err := c.store.Get(ctx, key)
		if err != nil {
			c.logger.Warn("session store lookup failed", zap.String("user", user), zap.Error(err))
		} else if ok {
			c.logger.Debug("reusing cached session", zap.String("user", user))
			c.setSession(user, id)
			return id, nil
		}
	}

	result, err := c.roundTrip(ctx, c.builder.Login(user, apiKey))
	if err != nil {
		return "", err
	}
	id, ok := result.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("soap: login returned %T, want session id", result)
	}
	c.setSession(user, id)

	if c.store != nil {
		if err := c.store.Put(ctx, key, id, c.ttl); err != nil {
			c.logger.Warn("failed to cache session", zap.String("user", user), zap.Error(err))
		}
	}
	return id, nil
}

func (c *client) Call(ctx context.Context, resourcePath string, arg any) (any, error) {
	id, _, err := c.session()
	if err != nil {
		return nil, err
	}
	call, err := c.builder.Call(id, resourcePath, arg)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, call)
}

func (c *client) MultiCall(ctx context.Context, calls []Invocation) ([]any, error) {
	id, _, err := c.session()
	if err != nil {
		return nil, err
	}
	call, err := c.builder.MultiCall(id, calls, nil)
	if err != nil {
		return nil, err
	}
	result, err := c.roundTrip(ctx, call)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	items, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("soap: multiCall returned %T, want array", result)
	}
	return items, nil
}

func (c *client) Logout(ctx context.Context) error {
	id, user, err := c.session()
	if err != nil {
		return err
	}
	if _, err := c.roundTrip(ctx, c.builder.Logout(id)); err != nil {
		return err
	}
	if c.store != nil {
		if err := c.store.Delete(ctx, session.Key(c.endpoint, user)); err != nil {
			c.logger.Warn("failed to drop cached session", zap.String("user", user), zap.Error(err))
		}
	}
	c.setSession("", "")
	return nil
}

func (c *client) Close() error {
	return c.transport.Close()
}

func (c *client) roundTrip(ctx context.Context, call *CallNode) (any, error) {
	c.logger.Debug("round trip", zap.String("method", call.Name))
	resp, err := c.transport.RoundTrip(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call.Name, err)
	}
	return resp.Result()
}

func (c *client) setSession(user, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user, c.sessionID = user, id
}

func (c *client) session() (id, user string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return "", "", ErrNoSession
	}
	return c.sessionID, c.user, nil
}
