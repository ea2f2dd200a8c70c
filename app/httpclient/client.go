package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	DefaultTimeout = 5 * time.Second

	transportErrorMessage = "Invalid URL or connection timeout"
	maskedValue           = "***"
)

// Request describes a single outbound call. A nil Body issues a GET, anything
// else a POST.
type Request struct {
	URL     string
	Body    []byte
	Headers map[string]string
	Timeout time.Duration
}

// Trace is the diagnostic snapshot of one call. It is returned with every
// response and never shared between calls.
type Trace struct {
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	Postfields   string            `json:"postfields,omitempty"`
	ResponseCode int               `json:"response_code"`
	Error        string            `json:"error,omitempty"`
}

// Masked returns a copy of the trace with credential headers redacted.
func (t Trace) Masked(sensitive ...string) Trace {
	out := t
	out.Headers = make(map[string]string, len(t.Headers))
	for k, v := range t.Headers {
		out.Headers[k] = v
		for _, name := range sensitive {
			if strings.EqualFold(k, name) {
				out.Headers[k] = maskedValue
				break
			}
		}
	}
	return out
}

func (t Trace) String() string {
	encoded, err := json.Marshal(t)
	if err != nil {
		return t.URL
	}
	return string(encoded)
}

type Response struct {
	Body       []byte
	StatusCode int
	Trace      Trace
}

const idleConnTimeout = 90 * time.Second

// Client shares one transport across calls. Per-call timeouts are carried by
// the request context, which bounds dialing, the TLS handshake and the body read.
type Client struct {
	transport *http.Transport
	client    *http.Client
}

func New() *Client {
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &Client{
		transport: transport,
		client:    &http.Client{Transport: transport},
	}
}

// CloseIdleConnections drops pooled keep-alive connections.
func (c *Client) CloseIdleConnections() {
	c.transport.CloseIdleConnections()
}

// Do never fails on transport errors. DNS, TCP, TLS and timeout failures are
// reported through a synthesized JSON body and Trace.Error, with StatusCode 0.
func (c *Client) Do(ctx context.Context, req Request) *Response {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	trace := Trace{
		URL:        req.URL,
		Headers:    cloneHeaders(req.Headers),
		Postfields: string(req.Body),
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := http.MethodGet
	var body io.Reader
	if req.Body != nil {
		method = http.MethodPost
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return transportFailure(trace, err)
	}
	for _, k := range sortedKeys(req.Headers) {
		httpReq.Header.Set(k, req.Headers[k])
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return transportFailure(trace, err)
	}
	defer resp.Body.Close()

	trace.ResponseCode = resp.StatusCode
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		failed := transportFailure(trace, err)
		failed.StatusCode = resp.StatusCode
		failed.Trace.ResponseCode = resp.StatusCode
		return failed
	}

	return &Response{
		Body:       payload,
		StatusCode: resp.StatusCode,
		Trace:      trace,
	}
}

func transportFailure(trace Trace, err error) *Response {
	trace.Error = err.Error()
	payload, _ := json.Marshal(map[string]string{
		"error":      transportErrorMessage,
		"curl_error": trace.Error,
	})
	return &Response{
		Body:  payload,
		Trace: trace,
	}
}

func cloneHeaders(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
