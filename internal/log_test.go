package internal

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, LogLevelDebug, ParseLogLevel(" debug "))
	assert.Equal(t, LogLevelTrace, ParseLogLevel("TRACE"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("verbose"))
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelWarn, false)

	logger.Info("hidden %d", 1)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown %s", "warning")
	assert.Contains(t, buf.String(), "shown warning")
	assert.Equal(t, LogLevelWarn, logger.GetLevel())
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelInfo, true).WithField("run_id", "abc")

	logger.WithFields(map[string]interface{}{"metric": "pts"}).Info("metric done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc", entry["run_id"])
	assert.Equal(t, "pts", entry["metric"])
	assert.Equal(t, "metric done", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}
