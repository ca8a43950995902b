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
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxRetries    = 3
	retryBaseWait = 500 * time.Millisecond
)

// soapAction is the SOAPAction header value the gateway routes on.
const soapAction = `"urn:Action"`

// newHTTPClient creates a fresh HTTP client with disabled connection reuse.
// This avoids EOF errors that can occur with connection pooling when the
// gateway sits behind short-lived PHP workers.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError checks if an error is transient and worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	if errors.Is(err, io.EOF) || strings.Contains(errStr, "EOF") {
		return true
	}
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") {
		return true
	}
	return false
}

// requester posts request bodies with retry on transient failures.
type requester struct {
	logger  *zap.Logger
	retries int
	timeout time.Duration
}

var defaultRequester = requester{
	logger:  zap.NewNop(),
	retries: maxRetries,
	timeout: 30 * time.Second,
}

func requesterFor(o *dialOptions) requester {
	return requester{logger: o.logger, retries: o.retries, timeout: o.timeout}
}

func withQuery(uri *url.URL, params url.Values) *url.URL {
	u := *uri
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return &u
}

// post sends body and hands the first response obtained to handle. The
// response body is closed afterwards.
func (r requester) post(
	ctx context.Context,
	uri *url.URL,
	contentType string,
	body []byte,
	ops *Options,
	handle func(*http.Response) error,
) error {
	target := withQuery(uri, ops.queryParams).String()
	requestID := uuid.NewString()
	log := r.logger.With(zap.String("uri", target), zap.String("request_id", requestID))

	retries := r.retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 500ms, 1s, 2s
			waitTime := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}

		// Create fresh request for each attempt (body reader is consumed)
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		request.Header = ops.headers.Clone()
		request.Header.Set("Content-Type", contentType)
		request.Header.Set("X-Request-Id", requestID)
		if request.Header.Get("SOAPAction") == "" && strings.HasPrefix(contentType, "text/xml") {
			request.Header.Set("SOAPAction", soapAction)
		}

		resp, err := newHTTPClient(r.timeout).Do(request)
		if err != nil {
			lastErr = err
			log.Warn("request attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Bool("retryable", isRetryableError(err)),
				zap.Error(err))
			if isRetryableError(err) {
				continue
			}
			return fmt.Errorf("failed to issue request: %w", err)
		}
		if attempt > 0 {
			log.Info("request succeeded after retry", zap.Int("attempt", attempt+1))
		}

		err = handle(resp)
		CleanlyCloseBody(resp.Body)
		return err
	}

	return fmt.Errorf("failed to issue request after %d retries: %w", retries, lastErr)
}

// SendSOAPRequest posts call as a SOAP envelope to uri and decodes the
// response envelope into reply. Faults are returned in reply.Fault, not as
// an error.
func SendSOAPRequest(
	ctx context.Context,
	uri *url.URL,
	call *CallNode,
	reply *Response,
	options ...Option,
) error {
	return defaultRequester.sendSOAP(ctx, uri, XMLCodec{}, call, reply, NewOptions(options))
}

func (r requester) sendSOAP(ctx context.Context, uri *url.URL, codec Codec, call *CallNode, reply *Response, ops *Options) error {
	body, err := codec.Encode(call)
	if err != nil {
		return fmt.Errorf("failed to encode call: %w", err)
	}
	r.logger.Debug("sending soap request", zap.String("call", call.Name), zap.Int("bytes", len(body)))

	return r.post(ctx, uri, codec.ContentType(), body, ops, func(resp *http.Response) error {
		// SOAP 1.1 reports faults with status 500
		if (resp.StatusCode < 200 || resp.StatusCode > 299) && resp.StatusCode != http.StatusInternalServerError {
			return fmt.Errorf("received status code: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if err := codec.Decode(data, reply); err != nil {
			if resp.StatusCode == http.StatusInternalServerError {
				return fmt.Errorf("received status code: %d", resp.StatusCode)
			}
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

// httpTransport posts SOAP envelopes to a fixed endpoint.
type httpTransport struct {
	uri   *url.URL
	codec Codec
	req   requester
	ops   *Options
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	uri, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	return uri, nil
}

func dialHTTP(ctx context.Context, endpoint string, o *dialOptions) (Transport, error) {
	uri, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return &httpTransport{
		uri:   uri,
		codec: o.codec,
		req:   requesterFor(o),
		ops:   NewOptions(o.request),
	}, nil
}

func (t *httpTransport) RoundTrip(ctx context.Context, call *CallNode) (*Response, error) {
	var resp Response
	if err := t.req.sendSOAP(ctx, t.uri, t.codec, call, &resp, t.ops); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *httpTransport) Close() error { return nil }
