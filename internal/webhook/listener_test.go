package webhook

import (
	"io"
	"log/slog"
	"testing"
)

func TestActivatedListeners_NotActivated(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no env", nil},
		{"other process", map[string]string{"LISTEN_PID": "1", "LISTEN_FDS": "1"}},
		{"no fds", map[string]string{"LISTEN_PID": "4242"}},
		{"zero fds", map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls, err := activatedListeners(func(k string) string { return tt.env[k] }, 4242)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(ls) != 0 {
				t.Errorf("expected no listeners, got %d", len(ls))
			}
		})
	}
}

func TestActivatedListeners_InvalidEnv(t *testing.T) {
	for _, env := range []map[string]string{
		{"LISTEN_PID": "abc"},
		{"LISTEN_PID": "4242", "LISTEN_FDS": "many"},
	} {
		if _, err := activatedListeners(func(k string) string { return env[k] }, 4242); err == nil {
			t.Errorf("expected error for env %v", env)
		}
	}
}

func TestListen_TCPFallback(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	ln, err := listen("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() {
		_ = ln.Close()
	}()
	if ln.Addr().Network() != "tcp" {
		t.Errorf("expected tcp listener, got %s", ln.Addr().Network())
	}
}
