package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewAcceptsLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger, err := New(Config{Level: level, Output: "stderr"})
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewRejectsUnknownOutput(t *testing.T) {
	_, err := New(Config{Level: "info", Output: "/var/log/bridge.log"})
	assert.Error(t, err)
}

func TestProcessConfigs(t *testing.T) {
	r := RendererConfig("debug", true)
	assert.Equal(t, "stderr", r.Output)
	assert.Equal(t, "renderer", r.Process)
	assert.Equal(t, "debug", r.Level)
	assert.True(t, r.Development)

	h := HostConfig("warn", false)
	assert.Equal(t, "stdout", h.Output)
	assert.Equal(t, "host", h.Process)

	for _, cfg := range []Config{r, h} {
		logger, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, logger.Logger)
	}
}

func TestForBrowserAddsField(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := Wrap(zap.New(core)).ForBrowser("brw_1")

	logger.Info("hello")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, "brw_1", entry.ContextMap()["browser"])
}

func TestWrapNil(t *testing.T) {
	assert.NotNil(t, Wrap(nil).Logger)
}
