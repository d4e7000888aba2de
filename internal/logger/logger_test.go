package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_ProductionDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Environment: "production"})

	log.Info("queue drained", slog.Int("synced", 3))

	out := buf.String()
	assert.Contains(t, out, `"msg":"queue drained"`)
	assert.Contains(t, out, `"synced":3`)
}

func TestPrettyHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: formatPretty})

	log.Info("flush complete", slog.String("kind", "library_upsert"))

	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "flush complete")
	assert.Contains(t, out, "kind=library_upsert")
}

func TestPrettyHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: formatPretty, Level: slog.LevelWarn})

	log.Debug("noise")
	log.Info("more noise")
	log.Warn("pending tasks stuck")

	out := buf.String()
	assert.NotContains(t, out, "noise")
	assert.Contains(t, out, "pending tasks stuck")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: formatPretty})

	log.WithError(assert.AnError).Error("flush failed")

	assert.Contains(t, buf.String(), "error="+assert.AnError.Error())
}
