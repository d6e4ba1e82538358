package log

import "sync"

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// SetDefaultLogger sets the default global logger that will be used if calling logging functions directly exported by this package
func SetDefaultLogger(logger *Logger) {
	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
}

// DefaultLogger returns the current default logger.  Never nil: a discarding logger is returned until one is set.
func DefaultLogger() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return discard
	}
	return defaultLogger
}

var discard = Discard()

// Debug logs at debug Level using the default logger.
func Debug(msg string, args ...any) {
	DefaultLogger().Debug(msg, args...)
}

// Info logs at info Level using the default logger.
func Info(msg string, args ...any) {
	DefaultLogger().Info(msg, args...)
}

// Warn logs at warn Level using the default logger.
func Warn(msg string, args ...any) {
	DefaultLogger().Warn(msg, args...)
}

// Error logs at error Level using the default logger.
func Error(msg string, args ...any) {
	DefaultLogger().Error(msg, args...)
}

// Trace logs at debug level using the default logger, but only if trace logging is enabled.
func Trace(msg string, args ...any) {
	DefaultLogger().Trace(msg, args...)
}
