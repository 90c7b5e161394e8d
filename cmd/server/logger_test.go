package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/loadwatch/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("Invalid level", func(t *testing.T) {
		_, err := newLogger(config.LogConfig{Level: "loud"})
		require.Error(t, err)
	})

	t.Run("Rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "loadwatch.log")
		logger, err := newLogger(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1})
		require.NoError(t, err)

		logger.Info("Alert dispatched")
		_ = logger.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Alert dispatched")
	})
}
