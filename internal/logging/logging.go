// Package logging configures the logrus loggers used by the CLI, hooks and servers.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// ModuleName is attached to every entry so vault logs can be filtered.
const ModuleName = "spellbook"

// New returns a JSON logger writing to w at the named level.
// Unknown level names fall back to info.
func New(level string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetOutput(w)
	return logger
}

// Entry returns the base entry with the module field set.
func Entry(logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("module", ModuleName)
}

// OpenFile opens (creating if needed) an append-only log file and returns a
// logger that writes to it. The returned closer releases the file.
// Hooks must never fail, so on error a discarding logger is returned instead.
func OpenFile(level, path string) (*logrus.Logger, io.Closer) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Discard(), nopCloser{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return Discard(), nopCloser{}
	}
	return New(level, f), f
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	return New("panic", io.Discard)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
