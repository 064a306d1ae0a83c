package utils

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	logMu  sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Logger returns a copy of the process logger.
func Logger() *zerolog.Logger {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	return &l
}

// SetLogger replaces the process logger, e.g. zerolog.Nop() in tests.
func SetLogger(l zerolog.Logger) {
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

// SetDebug toggles debug-level output.
func SetDebug(on bool) {
	logMu.Lock()
	defer logMu.Unlock()
	if on {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) {
	Logger().Debug().Msgf(format, args...)
}
