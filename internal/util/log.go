// Package util holds the pieces every rtchat package shares: the pterm-backed
// logger, the adapter that feeds pion's own logging into it, and the data
// channel traffic reporter.
//
// Log lines go to pterm's default logger. The chat itself is printed to the
// terminal too, so debug output stays hidden unless EnableDebug is called.
package util

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

func logf(level pterm.LogLevel, format string, args ...interface{}) {
	l := &pterm.DefaultLogger
	if !l.CanPrint(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch level {
	case pterm.LogLevelDebug:
		l.Debug(msg)
	case pterm.LogLevelWarn:
		l.Warn(msg)
	case pterm.LogLevelError:
		l.Error(msg)
	default:
		l.Info(msg)
	}
}

func LogDebug(format string, args ...interface{}) { logf(pterm.LogLevelDebug, format, args...) }
func LogInfo(format string, args ...interface{}) { logf(pterm.LogLevelInfo, format, args...) }
func LogWarning(format string, args ...interface{}) { logf(pterm.LogLevelWarn, format, args...) }
func LogError(format string, args ...interface{}) { logf(pterm.LogLevelError, format, args...) }

// LogSuccess marks a milestone the user waits for: a peer connected, a
// channel opened.
func LogSuccess(format string, args ...interface{}) {
	logf(pterm.LogLevelInfo, "✓ "+format, args...)
}

// EnableDebug shows debug lines, including pion's internal logging.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// SetLogOutput redirects all log output. Session tests pass io.Discard so
// the logger does not interleave with the chat output they inspect.
func SetLogOutput(w io.Writer) {
	pterm.DefaultLogger.Writer = w
}
