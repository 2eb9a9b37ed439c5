package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := New(Options{Level: "debug", Format: "json", Output: "file", File: file, MaxSize: 1})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("campaignId", "abc").Info("batch finished")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"batch finished"`)
	assert.Contains(t, string(data), `"campaignId":"abc"`)
}

func TestNewFallsBackToInfo(t *testing.T) {
	log, err := New(Options{Level: "nonsense", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
