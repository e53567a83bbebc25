package robot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProfileLoggerWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "gate.log")
	log, err := NewProfileLogger("gate", logPath, false)
	require.NoError(t, err)

	log.Info().Msg("watcher started")

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "watcher started")
	require.Contains(t, string(raw), `"profile":"gate"`)
}

func TestNewProfileLoggerAppends(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gate.log")
	for _, msg := range []string{"first", "second"} {
		log, err := NewProfileLogger("gate", logPath, false)
		require.NoError(t, err)
		log.Info().Msg(msg)
	}
	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "first")
	require.Contains(t, string(raw), "second")
}
