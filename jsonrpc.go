// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	rpc "github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"
)

// SendJSONRequest posts a JSON-RPC 2.0 request to uri and decodes the
// result into reply. Remote errors are returned as *Fault.
func SendJSONRequest(
	ctx context.Context,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
	options ...Option,
) error {
	return defaultRequester.sendJSON(ctx, uri, method, params, reply, NewOptions(options))
}

func (r requester) sendJSON(ctx context.Context, uri *url.URL, method string, params, reply interface{}, ops *Options) error {
	requestBodyBytes, err := rpc.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}
	r.logger.Debug("sending json-rpc request", zap.String("method", method))

	return r.post(ctx, uri, "application/json", requestBodyBytes, ops, func(resp *http.Response) error {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("received status code: %d", resp.StatusCode)
		}
		if err := rpc.DecodeClientResponse(resp.Body, reply); err != nil {
			if errors.Is(err, rpc.ErrNullResult) {
				// void methods such as endSession
				return nil
			}
			var rpcErr *rpc.Error
			if errors.As(err, &rpcErr) {
				return &Fault{Code: strconv.Itoa(int(rpcErr.Code)), String: rpcErr.Message}
			}
			return fmt.Errorf("failed to decode client response: %w", err)
		}
		return nil
	})
}

// jsonTransport sends the same calls as JSON-RPC requests. Argument trees
// are flattened with PlainValue since JSON carries its own types.
type jsonTransport struct {
	uri *url.URL
	req requester
	ops *Options
}

func dialJSON(ctx context.Context, endpoint string, o *dialOptions) (Transport, error) {
	uri, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return &jsonTransport{uri: uri, req: requesterFor(o), ops: NewOptions(o.request)}, nil
}

func (t *jsonTransport) RoundTrip(ctx context.Context, call *CallNode) (*Response, error) {
	params, err := jsonParams(call)
	if err != nil {
		return nil, err
	}
	var reply interface{}
	err = t.req.sendJSON(ctx, t.uri, call.Name, params, &reply, t.ops)
	var fault *Fault
	if errors.As(err, &fault) {
		return &Response{Fault: fault}, nil
	}
	if err != nil {
		return nil, err
	}
	return NewPlainResponse(reply), nil
}

func (t *jsonTransport) Close() error { return nil }

// jsonParams lists the children of a call root as positional parameters.
func jsonParams(call *CallNode) ([]interface{}, error) {
	params := make([]interface{}, 0, len(call.Children))
	for _, c := range call.Children {
		if c.Kind == 0 && c.HasText {
			params = append(params, c.Text)
			continue
		}
		v, err := PlainValue(c)
		if err != nil {
			return nil, fmt.Errorf("json-rpc param %q: %w", c.Name, err)
		}
		params = append(params, jsonSafe(v))
	}
	return params, nil
}

// jsonSafe turns []KeyValue maps into [key, value] pairs, which JSON can hold.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case []KeyValue:
		out := make([]any, len(x))
		for i, kv := range x {
			out[i] = []any{jsonSafe(kv.Key), jsonSafe(kv.Value)}
		}
		return out
	case []any:
		for i := range x {
			x[i] = jsonSafe(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = jsonSafe(x[k])
		}
		return x
	}
	return v
}
