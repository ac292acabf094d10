package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultTimeout bounds every single request attempt.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Request describes one HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Client performs HTTP calls with a per-attempt timeout. An idempotent attempt
// that times out is retried exactly once; every other failure, and any timeout
// of a non-idempotent request, is returned as is.
type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a client. A zero timeout selects DefaultTimeout.
func NewClient(httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, timeout: timeout, logger: logger}
}

// Do executes req and returns the response body of a 2xx response.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	var body []byte
	err := c.withRetry(ctx, req, func(ctx context.Context) error {
		resp, err := c.send(ctx, req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		if err := checkStatus(req, resp, b); err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

// GetJSON fetches url and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, err := c.Do(ctx, Request{Method: http.MethodGet, URL: url, Header: header})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Download streams url into dest. The file is written to a temporary
// sibling first and renamed into place once complete.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	req := Request{Method: http.MethodGet, URL: url}
	return c.withRetry(ctx, req, func(ctx context.Context) error {
		resp, err := c.send(ctx, req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return checkStatus(req, resp, b)
		}

		tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".ijsync-download-*")
		if err != nil {
			return err
		}
		tmpPath := tmpFile.Name()
		defer func() {
			_ = os.Remove(tmpPath)
		}() // cleanup on error

		if _, err := io.Copy(tmpFile, resp.Body); err != nil {
			_ = tmpFile.Close()
			return fmt.Errorf("download %s: %w", url, err)
		}
		if err := tmpFile.Close(); err != nil {
			return err
		}
		return os.Rename(tmpPath, dest)
	})
}

// HTTPClient returns the underlying client for libraries that issue their own
// requests through Attempt.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Attempt runs fn under the client's per-attempt timeout and retry policy.
// fn must complete the whole exchange, body included, before returning.
func (c *Client) Attempt(ctx context.Context, method, target string, fn func(context.Context) error) error {
	return c.withRetry(ctx, Request{Method: method, URL: target}, fn)
}

// withRetry runs attempt under a fresh timeout, once more if an idempotent
// request timed out.
func (c *Client) withRetry(ctx context.Context, req Request, attempt func(context.Context) error) error {
	var err error
	for try := 1; try <= 2; try++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = attempt(attemptCtx)
		cancel()

		if err == nil || ctx.Err() != nil || !IsTimeout(err) {
			return err
		}
		c.logger.Warn("request timed out", "method", req.Method, "url", req.URL, "attempt", try)
		if !idempotent(req.Method) {
			return err
		}
	}
	return err
}

// idempotent reports whether a request may be repeated without side effects.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	c.logger.Debug("http request", "method", req.Method, "url", req.URL)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	return resp, nil
}

func checkStatus(req Request, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return &StatusError{
		Method:     req.Method,
		URL:        req.URL,
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(body)),
	}
}

// IsTimeout reports whether err stems from an attempt deadline or a network
// timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
