package remotefs

import (
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerMu sync.RWMutex
	logger   = zerolog.Nop()
)

// SetLogger replaces the logger used by clients created afterwards.
// The package logs nothing until this is called.
func SetLogger(l zerolog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func clientLogger(protocol Protocol, host string) zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger.With().Str("protocol", string(protocol)).Str("host", host).Logger()
}
