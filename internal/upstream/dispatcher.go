// Package upstream issues chat-completion calls against provider APIs.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/af-corp/model-proxy/internal/httputil"
	"github.com/af-corp/model-proxy/internal/provider"
	"github.com/af-corp/model-proxy/internal/transform"
)

// maxErrorBody caps how much of a non-success body is buffered.
const maxErrorBody = 1 << 20

// Result is a response the caller should relay. Exactly one of Stream and
// Body is set: Stream for successful streaming calls, Body otherwise.
type Result struct {
	Status int
	Header http.Header
	Stream io.ReadCloser
	Body   json.RawMessage
}

// Close releases the stream, if any.
func (r *Result) Close() error {
	if r.Stream != nil {
		return r.Stream.Close()
	}
	return nil
}

// Dispatcher sends outbound requests. Vendors asking for a keep-alive
// transport get a dedicated connection pool; the rest share one.
type Dispatcher struct {
	timeout   time.Duration
	shared    *http.Client
	keepAlive *http.Client
	logger    *slog.Logger
}

func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	shared := httputil.DefaultConfig(timeout)

	pooled := httputil.DefaultConfig(timeout)
	pooled.MaxIdleConnsPerHost = 32

	return &Dispatcher{
		timeout:   timeout,
		shared:    httputil.NewClient(shared),
		keepAlive: httputil.NewClient(pooled),
		logger:    logger,
	}
}

func (d *Dispatcher) client(desc provider.Descriptor) *http.Client {
	if desc.Transport.KeepAlive {
		return d.keepAlive
	}
	return d.shared
}

// CloseIdleConnections drops pooled connections of both clients.
func (d *Dispatcher) CloseIdleConnections() {
	d.shared.CloseIdleConnections()
	d.keepAlive.CloseIdleConnections()
}

// Dispatch performs one upstream call.
//
// A 5xx answer is returned as *UpstreamError and transport failures as a
// wrapped error; both are meant to be retried. Any status below 500 is a
// Result, so 4xx answers reach the caller unchanged and are not retried.
// The timeout covers the whole exchange for buffered calls and everything up
// to the response headers for streaming calls.
func (d *Dispatcher) Dispatch(ctx context.Context, out *transform.Outbound, desc provider.Descriptor) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(d.timeout, cancel)
	release := func() {
		timer.Stop()
		cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, out.URL, bytes.NewReader(out.Body))
	if err != nil {
		release()
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	for k, v := range out.Header {
		req.Header[k] = v
	}

	d.logger.Debug("upstream request",
		"provider", desc.Provider,
		"url", out.URL,
		"upstream_model", desc.UpstreamModel,
		"stream", out.Stream,
		"body", string(out.Body),
	)

	resp, err := d.client(desc).Do(req)
	if err != nil {
		fired := !timer.Stop()
		cancel()
		if fired {
			return nil, fmt.Errorf("%s request to %s timed out after %s: %w", desc.Provider, out.URL, d.timeout, err)
		}
		return nil, fmt.Errorf("%s request to %s: %w", desc.Provider, out.URL, err)
	}

	if resp.StatusCode >= 500 {
		defer release()
		body := readLimited(resp.Body)
		d.logger.Error("upstream server error",
			"provider", desc.Provider,
			"status", resp.StatusCode,
			"url", out.URL,
			"body", string(body),
		)
		return nil, &UpstreamError{
			Provider:    desc.Provider,
			Status:      resp.StatusCode,
			StatusText:  http.StatusText(resp.StatusCode),
			URL:         out.URL,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}

	if resp.StatusCode >= 400 {
		defer release()
		body := readLimited(resp.Body)
		d.logger.Warn("upstream rejected request",
			"provider", desc.Provider,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return &Result{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	if out.Stream {
		if !timer.Stop() {
			release()
			resp.Body.Close()
			return nil, fmt.Errorf("%s request to %s timed out after %s", desc.Provider, out.URL, d.timeout)
		}
		return &Result{
			Status: resp.StatusCode,
			Header: resp.Header,
			Stream: &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
		}, nil
	}

	defer release()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", desc.Provider, err)
	}
	return &Result{Status: resp.StatusCode, Header: resp.Header, Body: asJSON(raw)}, nil
}

// asJSON keeps a valid JSON body as-is and turns anything else into a JSON
// string so the relay always writes JSON.
func asJSON(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

func readLimited(body io.ReadCloser) []byte {
	defer body.Close()
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return data
}

// cancelOnClose releases the request context when the stream is closed.
type cancelOnClose struct {
	io.ReadCloser
	once   sync.Once
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.cancel)
	return err
}
