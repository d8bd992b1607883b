package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   Level
		shown   []string
		dropped []string
	}{
		{name: "default is warn", level: DefaultConfig().Level, shown: []string{"warned", "failed"}, dropped: []string{"traced", "noted"}},
		{name: "verbose is debug", level: VerboseConfig().Level, shown: []string{"traced", "noted", "warned", "failed"}},
		{name: "error only", level: LevelError, shown: []string{"failed"}, dropped: []string{"traced", "noted", "warned"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := New(Config{Level: tt.level, Output: buf})

			logger.Debug("traced")
			logger.Info("noted")
			logger.Warn("warned", "plan", "max")
			logger.Error("failed")

			out := buf.String()
			for _, s := range tt.shown {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.dropped {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestJSONIncludesService(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: LevelDebug, Format: ParseFormat("json"), Output: buf, ServiceName: "pessimist"})

	logger.With("worker", 3).Debug("worker started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pessimist", entry["service"])
	assert.Equal(t, "worker started", entry["msg"])
	assert.Equal(t, float64(3), entry["worker"])
}

func TestTextOmitsService(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := DefaultConfig()
	cfg.Output = buf
	New(cfg).Warn("slow index", "latency", "2s")

	assert.Contains(t, buf.String(), "latency=2s")
	assert.NotContains(t, buf.String(), "service=")
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat("bogus"))
}

func TestDefaultLogger(t *testing.T) {
	original := defaultLogger
	t.Cleanup(func() { defaultLogger = original })

	custom := Discard()
	SetDefaultLogger(custom)
	assert.Same(t, custom, DefaultLogger())
	assert.Same(t, custom, OrDefault(nil))

	other := New(Config{Output: &bytes.Buffer{}})
	assert.Same(t, other, OrDefault(other))

	SetDefaultLogger(nil)
	assert.NotNil(t, DefaultLogger())
}
