package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	prev := Logger
	var buf bytes.Buffer
	InitWithHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level}))
	t.Cleanup(func() { InitWithHandler(prev.Handler()) })
	return &buf
}

func TestComponentFollowsInit(t *testing.T) {
	log := Component("accessor").With("site", "ir2")

	buf := capture(t, slog.LevelInfo)
	log.Info("catalog loaded", "channels", 3)
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "component=accessor")
	assert.Contains(t, out, "site=ir2")
	assert.Contains(t, out, "channels=3")
	assert.NotContains(t, out, "hidden")

	buf = capture(t, slog.LevelDebug)
	log.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestComponentGroups(t *testing.T) {
	buf := capture(t, slog.LevelInfo)
	Component("source").WithGroup("tunnel").Info("opened", "addr", "127.0.0.1:1")
	assert.Contains(t, buf.String(), "tunnel.addr=127.0.0.1:1")
}

func TestWithContext(t *testing.T) {
	buf := capture(t, slog.LevelInfo)
	ctx := ContextWithRequestID(ContextWithSite(context.Background(), "summit"), 42)
	WithContext(ctx).Info("request")

	assert.Contains(t, buf.String(), "site=summit")
	assert.Contains(t, buf.String(), "request_id=42")
}

func TestNewStdLogger(t *testing.T) {
	buf := capture(t, slog.LevelInfo)
	NewStdLogger(Component("server")).Print("http: TLS handshake error")

	line := buf.String()
	assert.Contains(t, line, "level=WARN")
	assert.True(t, strings.Contains(line, "TLS handshake error"), line)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{" INFO ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
