package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		_, _ = io.WriteString(w, `{"name":"ijsync"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), time.Second, testLogger())
	var out struct {
		Name string `json:"name"`
	}
	err := c.GetJSON(context.Background(), srv.URL, http.Header{"X-Test": {"yes"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ijsync", out.Name)
}

func TestDo_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), time.Second, testLogger())
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "nope", statusErr.Body)
}

func TestDo_RetriesOnceOnTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), 50*time.Millisecond, testLogger())
	body, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_GivesUpAfterSecondTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), 30*time.Millisecond, testLogger())
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_PostTimeoutIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), 30*time.Millisecond, testLogger())
	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL, Body: []byte("{}")})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestAttempt_RetriesIdempotentOnly(t *testing.T) {
	c := NewClient(nil, 20*time.Millisecond, testLogger())
	timeout := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodGet, 2},
		{http.MethodHead, 2},
		{http.MethodPost, 1},
		{http.MethodPatch, 1},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			calls := 0
			err := c.Attempt(context.Background(), tt.method, "http://example.invalid", func(ctx context.Context) error {
				calls++
				return timeout(ctx)
			})
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Equal(t, tt.want, calls)
		})
	}
}

func TestDo_NoRetryOnStatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), time.Second, testLogger())
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "jar-bytes")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "nested", "verifier.jar")
	c := NewClient(srv.Client(), time.Second, testLogger())
	require.NoError(t, c.Download(context.Background(), srv.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "jar-bytes", string(got))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestDownload_NotFoundLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "x.zip")
	c := NewClient(srv.Client(), time.Second, testLogger())
	require.Error(t, c.Download(context.Background(), srv.URL, dest))
	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}
