// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/soap/session"
)

// Client is the transport-agnostic client of a SOAP-RPC gateway.
// All application code should use this interface.
type Client interface {
	// Login opens a session, reusing a cached one when a session store is set
	Login(ctx context.Context, user, apiKey string) (string, error)

	// Call invokes resourcePath with arg as its payload
	Call(ctx context.Context, resourcePath string, arg any) (any, error)

	// MultiCall runs several invocations in one request
	MultiCall(ctx context.Context, calls []Invocation) ([]any, error)

	// Logout ends the current session
	Logout(ctx context.Context) error

	// Close releases the transport
	Close() error
}

// Server accepts calls over the frame transport.
type Server interface {
	// Handle registers h for the call name (login, call, ...)
	Handle(call string, h Handler)

	// Serve starts serving requests (blocks until closed)
	Serve(ctx context.Context) error

	// Close stops the server
	Close() error

	// Addr returns the server's listen address
	Addr() string
}

// Handler answers one decoded call. The returned value is encoded as the
// <call>Return element; returning a *Fault sends that fault verbatim.
type Handler func(ctx context.Context, call *CallNode) (any, error)

// Codec encodes/decodes messages
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
	ContentType() string
}

// Transport carries a call tree to the peer and returns its response.
type Transport interface {
	io.Closer
	RoundTrip(ctx context.Context, call *CallNode) (*Response, error)
}

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	transport string // "http", "json", "frame", "grpc"
	codec     Codec
	logger    *zap.Logger
	builder   []BuilderOption
	store     session.Store
	ttl       time.Duration
	retries   int
	timeout   time.Duration
	request   []Option
}

func newDialOptions(opts []DialOption) *dialOptions {
	o := &dialOptions{
		transport: DefaultTransport,
		codec:     defaultCodec,
		logger:    zap.NewNop(),
		ttl:       time.Hour,
		retries:   maxRetries,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCodec sets a custom envelope codec
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithLogger sets the logger used by the client and its transport
func WithLogger(l *zap.Logger) DialOption {
	return func(o *dialOptions) { o.logger = l }
}

// WithBuilderOptions configures the CallBuilder used by the client
func WithBuilderOptions(opts ...BuilderOption) DialOption {
	return func(o *dialOptions) { o.builder = append(o.builder, opts...) }
}

// WithSessionStore caches session ids per endpoint and user for ttl
func WithSessionStore(s session.Store, ttl time.Duration) DialOption {
	return func(o *dialOptions) {
		o.store = s
		o.ttl = ttl
	}
}

// WithRetries sets how many attempts HTTP transports make
func WithRetries(n int) DialOption {
	return func(o *dialOptions) { o.retries = n }
}

// WithTimeout sets the per-request timeout of HTTP transports
func WithTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.timeout = d }
}

// WithRequestOptions adds headers or query parameters to HTTP requests
func WithRequestOptions(opts ...Option) DialOption {
	return func(o *dialOptions) { o.request = append(o.request, opts...) }
}

// Option configures a single HTTP request
type Option func(*Options)

// Options holds per-request HTTP settings
type Options struct {
	headers     http.Header
	queryParams url.Values
}

// NewOptions applies opts to fresh Options
func NewOptions(opts []Option) *Options {
	o := &Options{
		headers:     http.Header{},
		queryParams: url.Values{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHeader sets a request header
func WithHeader(key, value string) Option {
	return func(o *Options) { o.headers.Set(key, value) }
}

// WithQueryParam adds a query parameter
func WithQueryParam(key, value string) Option {
	return func(o *Options) { o.queryParams.Add(key, value) }
}
