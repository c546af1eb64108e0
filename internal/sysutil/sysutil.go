// Package sysutil holds tiny process-level helpers shared by the entrypoint:
// global log-level selection and environment-string parsing.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn/warning, error,
// fatal, panic. Blank or unrecognized input keeps the info level.
func SetLogLevel(lvl string) {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	l, err := zerolog.ParseLevel(s)
	if err != nil || l == zerolog.NoLevel {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
}

// IsTruthy reports whether an environment variable string should be considered
// true. Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first non-blank string from a variadic list.
// If all values are blank, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
