package stream

import (
	"log"
	"sync/atomic"
)

var debugLogging atomic.Bool

// SetDebugLogging enables per-interval progress logs of the producer.
func SetDebugLogging(enabled bool) {
	debugLogging.Store(enabled)
}

func logDebugf(format string, args ...any) {
	if debugLogging.Load() {
		log.Printf(format, args...)
	}
}
