// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/soap/session"
)

// countingServer serves an echo gateway and counts the requests it sees.
func countingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := NewEchoMux(zap.NewNop(), "sess-1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPClient(t *testing.T) {
	ctx := context.Background()
	srv, hits := countingServer(t)

	c, err := Dial(ctx, srv.URL)
	require.NoError(t, err)
	defer c.Close()

	require.ErrorIs(t, c.Logout(ctx), ErrNoSession)

	id, err := c.Login(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)

	got, err := c.Call(ctx, "customer.info", []any{"bob@example.com", 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"bob@example.com", int64(3)}, got)

	got, err = c.Call(ctx, "customer.info", map[int]string{10: "ten", 2: "two"})
	require.NoError(t, err)
	assert.Equal(t, []KeyValue{{int64(2), "two"}, {int64(10), "ten"}}, got)

	got, err = c.Call(ctx, "customer.info", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	items, err := c.MultiCall(ctx, []Invocation{{ResourcePath: "a", Args: "x"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, items)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, int32(6), hits.Load())
}

func TestHTTPClientLoginFault(t *testing.T) {
	srv, _ := countingServer(t)
	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "", "secret")
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "2", fault.Code)
	assert.Equal(t, "Access denied.", fault.String)
}

func TestHTTPClientSessionStore(t *testing.T) {
	ctx := context.Background()
	srv, hits := countingServer(t)
	store := session.NewMemoryStore()

	dial := func() Client {
		c, err := Dial(ctx, srv.URL, WithSessionStore(store, time.Minute))
		require.NoError(t, err)
		return c
	}

	_, err := dial().Login(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	// second client reuses the cached session
	c := dial()
	id, err := c.Login(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
	assert.Equal(t, int32(1), hits.Load())

	require.NoError(t, c.Logout(ctx))
	_, ok, err := store.Get(ctx, session.Key(srv.URL, "bob"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = dial().Login(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPClientStaleSession(t *testing.T) {
	ctx := context.Background()
	srv, _ := countingServer(t)
	store := session.NewMemoryStore()
	require.NoError(t, store.Put(ctx, session.Key(srv.URL, "bob"), "stale", 0))

	c, err := Dial(ctx, srv.URL, WithSessionStore(store, time.Minute))
	require.NoError(t, err)
	id, err := c.Login(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, "stale", id)

	_, err = c.Call(ctx, "customer.info", 1)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "5", fault.Code)
}

func TestSendSOAPRequest(t *testing.T) {
	seen := make(chan *http.Request, 1)
	mux := NewMux(nil)
	mux.Handle(CallMethod, func(ctx context.Context, call *CallNode) (any, error) {
		return call.Child("resourcePath").Text, nil
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Clone(context.Background())
		mux.ServeHTTP(w, r)
	}))
	defer srv.Close()

	uri, err := url.Parse(srv.URL)
	require.NoError(t, err)
	call, err := NewCallBuilder().Call("s", "sales_order.info", "100000001")
	require.NoError(t, err)

	var reply Response
	err = SendSOAPRequest(context.Background(), uri, call, &reply,
		WithHeader("X-Store", "default"),
		WithQueryParam("type", "soap"),
	)
	require.NoError(t, err)

	result, err := reply.Result()
	require.NoError(t, err)
	assert.Equal(t, "sales_order.info", result)
	assert.Equal(t, "callResponse", reply.Body.Name)

	got := <-seen
	assert.Equal(t, "default", got.Header.Get("X-Store"))
	assert.Equal(t, `"urn:Action"`, got.Header.Get("SOAPAction"))
	assert.Equal(t, "text/xml; charset=utf-8", got.Header.Get("Content-Type"))
	assert.NotEmpty(t, got.Header.Get("X-Request-Id"))
	assert.Equal(t, "soap", got.URL.Query().Get("type"))
}

func TestMuxFaults(t *testing.T) {
	mux := NewMux(nil)
	mux.Handle(CallMethod, func(ctx context.Context, call *CallNode) (any, error) {
		return nil, errors.New("database unavailable")
	})
	mux.Handle(CallLogout, func(ctx context.Context, call *CallNode) (any, error) {
		return make(chan int), nil
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	uri, err := url.Parse(srv.URL)
	require.NoError(t, err)

	call, err := NewCallBuilder().Call("s", "r", nil)
	require.NoError(t, err)
	tests := []struct {
		name string
		call *CallNode
		code string
	}{
		{"handler error", call, FaultServer},
		{"unencodable result", NewCallBuilder().Logout("s"), FaultServer},
		{"unknown call", NewCallBuilder().Login("bob", "x"), FaultClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reply Response
			require.NoError(t, SendSOAPRequest(context.Background(), uri, tt.call, &reply))
			require.NotNil(t, reply.Fault)
			assert.Equal(t, tt.code, reply.Fault.Code)
		})
	}

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL, "text/xml", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHTTPStatusErrors(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))
		uri, err := url.Parse(srv.URL)
		require.NoError(t, err)

		var reply Response
		err = SendSOAPRequest(context.Background(), uri, NewCallBuilder().Logout("s"), &reply)
		assert.ErrorContains(t, err, "received status code")
		srv.Close()
	}
}

func TestHTTPRetry(t *testing.T) {
	var hits atomic.Int32
	mux := NewEchoMux(nil, "sess-1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			// drop the first attempt on the floor
			if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
				conn.Close()
			}
			return
		}
		mux.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL, WithRetries(2))
	require.NoError(t, err)
	id, err := c.Login(context.Background(), "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPRetryExhausted(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c, err := Dial(context.Background(), "http://"+addr, WithRetries(1))
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "bob", "secret")
	assert.ErrorContains(t, err, "after 1 retries")
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("read: connection reset by peer")))
	assert.True(t, isRetryableError(errors.New("unexpected EOF")))
	assert.False(t, isRetryableError(errors.New("no such host")))
}
