package redact

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	r := New("ghp_secret", "", "  ")
	assert.Equal(t, "token=*** again ***", r.String("token=ghp_secret again ghp_secret"))
	assert.Equal(t, "nothing here", r.String("nothing here"))

	var nilRedactor *Redactor
	assert.Equal(t, "ghp_secret", nilRedactor.String("ghp_secret"))
}

func TestError_KeepsChain(t *testing.T) {
	r := New("hunter2")
	base := fmt.Errorf("push with hunter2 failed: %w", fs.ErrPermission)

	err := r.Error(base)
	assert.Equal(t, "push with *** failed: permission denied", err.Error())
	assert.True(t, errors.Is(err, fs.ErrPermission))

	clean := errors.New("plain")
	assert.Same(t, clean, r.Error(clean))
	assert.Nil(t, r.Error(nil))
}

func TestReplaceAttr_NeverLogsSecrets(t *testing.T) {
	r := New("hunter2")
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: r.ReplaceAttr,
	}))

	logger.Debug("using token hunter2",
		"token", "hunter2",
		"error", errors.New("auth hunter2 rejected"),
		"nested", slog.GroupValue(slog.String("inner", "x-hunter2-x")))

	out := buf.String()
	require.NotEmpty(t, out)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"level":"DEBUG"`)
}

func TestAdd_Deduplicates(t *testing.T) {
	r := New()
	r.Add("abc")
	r.Add("abc")
	assert.Len(t, r.secrets, 1)
}
