package util

import (
	"fmt"

	"github.com/pion/logging"
)

// PionLoggerFactory routes pion's internal logging into the pterm logger.
// Trace and debug output only shows up with EnableDebug; pion's info chatter
// is demoted to debug so it does not interleave with the chat.
type PionLoggerFactory struct{}

// Compile-time interface check.
var _ logging.LoggerFactory = PionLoggerFactory{}

func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{scope: scope}
}

type pionLogger struct {
	scope string
}

func (l pionLogger) prefixed(msg string) string {
	return fmt.Sprintf("[pion/%s] %s", l.scope, msg)
}

func (l pionLogger) Trace(msg string) { LogDebug("%s", l.prefixed(msg)) }
func (l pionLogger) Tracef(format string, args ...interface{}) {
	LogDebug("%s", l.prefixed(fmt.Sprintf(format, args...)))
}

func (l pionLogger) Debug(msg string) { LogDebug("%s", l.prefixed(msg)) }
func (l pionLogger) Debugf(format string, args ...interface{}) {
	LogDebug("%s", l.prefixed(fmt.Sprintf(format, args...)))
}

func (l pionLogger) Info(msg string) { LogDebug("%s", l.prefixed(msg)) }
func (l pionLogger) Infof(format string, args ...interface{}) {
	LogDebug("%s", l.prefixed(fmt.Sprintf(format, args...)))
}

func (l pionLogger) Warn(msg string) { LogWarning("%s", l.prefixed(msg)) }
func (l pionLogger) Warnf(format string, args ...interface{}) {
	LogWarning("%s", l.prefixed(fmt.Sprintf(format, args...)))
}

func (l pionLogger) Error(msg string) { LogError("%s", l.prefixed(msg)) }
func (l pionLogger) Errorf(format string, args ...interface{}) {
	LogError("%s", l.prefixed(fmt.Sprintf(format, args...)))
}
