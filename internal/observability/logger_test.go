package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

func TestInitialize_IsIdempotent(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "sirius-test"}
	sink := zapcore.AddSync(zaptest.NewTestingWriter(t))

	Initialize(cfg, sink)
	first := GetLogger()
	require.NotNil(t, first)

	// A second Initialize must not replace the stored logger.
	Initialize(config.LoggerConfig{Level: "error", Format: "json"}, sink)
	assert.Same(t, first, GetLogger())
}

func TestGetLogger_FallbackBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	// The fallback must be usable without panicking.
	logger.Info("fallback message")
}

func TestInitialize_BadLevelDefaultsToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := config.LoggerConfig{Level: "not-a-level", Format: "console", ServiceName: "sirius-test"}
	Initialize(cfg, zapcore.AddSync(zaptest.NewTestingWriter(t)))

	logger := GetLogger()
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}
