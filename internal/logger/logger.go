// Package logger configures the process-wide logrus logger and exposes the
// small façade the rest of the code logs through. Verbose mode is wired to
// the CLI --verbose flag and lowers the level to debug.
package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields so callers don't import logrus directly.
type Fields = logrus.Fields

// Init sets up formatting and level. Called once from the CLI root.
func Init(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// SetOutput redirects log output. Useful for tests.
func SetOutput(w io.Writer) {
	logrus.SetOutput(w)
}

// WithFields returns a structured entry.
func WithFields(f Fields) *logrus.Entry {
	return logrus.WithFields(f)
}

// WithError returns an entry carrying an error field.
func WithError(err error) *logrus.Entry {
	return logrus.WithError(err)
}

func Debug(format string, args ...any) { logrus.Debugf(format, args...) }
func Info(format string, args ...any)  { logrus.Infof(format, args...) }
func Warn(format string, args ...any)  { logrus.Warnf(format, args...) }
func Error(format string, args ...any) { logrus.Errorf(format, args...) }
