package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdh8316/socialhunt/internal/config"
)

func TestNew_FileAndConsole(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "sh.log")
	var console bytes.Buffer

	log, closer, err := New(config.Log{Level: "debug", Format: "json", File: file, MaxSizeMB: 1}, &console)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("provider", "github").Debug("probe finished")
	require.NoError(t, closer.Close())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(console.Bytes()), &entry))
	assert.Equal(t, "probe finished", entry["msg"])
	assert.Equal(t, "github", entry["provider"])

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "probe finished")
}

func TestNew_Discard(t *testing.T) {
	log, closer, err := New(config.Log{Level: "nonsense"}, nil)
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	log.Info("nowhere")
}

func TestNew_BadFormat(t *testing.T) {
	_, _, err := New(config.Log{Format: "xml"}, nil)
	assert.Error(t, err)
}
