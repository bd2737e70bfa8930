package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentAuth, Output: &buf})

	l.Info("signed in", FieldUserID, "u1")
	l.WithComponent(ComponentExpense).Warn("slow")

	out := buf.String()
	assert.Contains(t, out, "component=auth")
	assert.Contains(t, out, "user_id=u1")
	assert.Contains(t, out, "component=expense")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestFromContext(t *testing.T) {
	l := Discard().WithComponent(ComponentAPI)
	ctx := WithLogger(context.Background(), l)
	assert.Equal(t, ComponentAPI, FromContext(ctx).Component())
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestLogFields(t *testing.T) {
	f := NewFields().WithOperation(OpLogin).WithError(errors.New("boom")).WithError(nil)
	assert.Equal(t, OpLogin, f[FieldOperation])
	assert.Equal(t, "boom", f[FieldError])
	assert.Len(t, f.ToSlice(), 4)
}
