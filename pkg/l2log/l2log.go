// Package l2log provides the engine's structured logging, following
// the same package-level logrus instance pattern used across the
// pack for per-device/per-operation structured fields.
package l2log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the package-level structured logger used by pkg/engine.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLevel sets the minimum logged severity ("debug", "info", "warn",
// "error").
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// WithFields returns an entry carrying the given structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithField returns an entry carrying a single structured field.
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}
