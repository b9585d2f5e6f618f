package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Defaults(t *testing.T) {
	logger, err := New(Config{Service: "duck-x402"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidSettings(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNewLogger_JSONCarriesServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(Config{Service: "duck-x402", Env: "docker", Level: "debug"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("hello")
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "duck-x402", entry["service"])
	assert.Equal(t, "docker", entry["env"])
	assert.Equal(t, "debug", entry["level"])
}
