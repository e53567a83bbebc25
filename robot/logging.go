package robot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// NewProfileLogger returns a logger that appends to the profile's log file.
// With console set, output is mirrored to stderr in human readable form.
// An empty logPath logs to stderr only.
func NewProfileLogger(profile string, logPath string, console bool) (zerolog.Logger, error) {
	var writers []io.Writer
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return zerolog.Nop(), fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
	}
	if console || logPath == "" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().
		Timestamp().
		Str("profile", profile).
		Logger()
	return log, nil
}
