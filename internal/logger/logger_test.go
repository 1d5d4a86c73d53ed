package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewLogger_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.FilePath = ""
	cfg.Console = true
	cfg.ConsoleWriter = &buf

	log, err := NewLogger(cfg)
	require.NoError(t, err)

	WithFileOperation(log, "a.png", "encode").Info("done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "done", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "a.png", entry["file"])
	assert.Equal(t, "encode", entry["operation"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_WithFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(dir, "logs", "photo-compressor.log")

	log, err := NewLogger(cfg)
	require.NoError(t, err)

	WithRun(log, "run-1").Warn("to file")

	b, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"run_id":"run-1"`)
	assert.Contains(t, string(b), "to file")
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.FilePath = ""
	cfg.Level = "error"
	cfg.Console = true
	cfg.ConsoleWriter = &buf

	log, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.ErrorLevel, log.GetLevel())

	log.Info("hidden")
	assert.Zero(t, buf.Len())
}

func TestNewLogger_NoOutputs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilePath = ""
	log, err := NewLogger(cfg)
	require.NoError(t, err)
	log.Info("discarded")
}
