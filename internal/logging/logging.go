// Package logging configures the process-wide logrus logger and hands out
// per-package entries carrying standard fields.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Configure sets level and format ("text" or "json") on the standard logger.
func Configure(level, format string, out io.Writer) error {
	lvl := logrus.WarnLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}
	logrus.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: false, FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("log format %q: want text or json", format)
	}
	if out != nil {
		logrus.SetOutput(out)
	}
	return nil
}

// For returns an entry tagged with the package name.
func For(pkg string) *logrus.Entry {
	return logrus.WithField("package", pkg)
}
