package redact

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Mask replaces every registered secret in redacted output.
const Mask = "***"

// Redactor scrubs registered secret values from strings, errors and log attributes.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

// New returns a Redactor seeded with the given secrets. Empty values are ignored.
func New(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		r.Add(s)
	}
	return r
}

// Add registers a secret value.
func (r *Redactor) Add(secret string) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.secrets {
		if s == secret {
			return
		}
	}
	r.secrets = append(r.secrets, secret)
}

// String returns s with every registered secret replaced by Mask.
func (r *Redactor) String(s string) string {
	if r == nil {
		return s
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, Mask)
	}
	return s
}

// Error returns an error whose message is scrubbed. The original error stays
// reachable through errors.Is and errors.As.
func (r *Redactor) Error(err error) error {
	if err == nil {
		return nil
	}
	msg := r.String(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook that scrubs string,
// error and stringer attribute values.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(r.String(v.String()))
	case slog.KindAny:
		switch x := v.Any().(type) {
		case slog.Level:
		case error:
			a.Value = slog.StringValue(r.String(x.Error()))
		case fmt.Stringer:
			a.Value = slog.StringValue(r.String(x.String()))
		}
	}
	return a
}
