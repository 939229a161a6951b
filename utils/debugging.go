package utils

import (
	"log"
	"sync/atomic"
	"time"
)

var debug atomic.Bool

// Enables the timing logs written by TimeMethod.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// Usage: defer utils.TimeMethod("name")()
func TimeMethod(name string) func() {
	start := time.Now()
	return func() {
		if debug.Load() {
			log.Printf("%s took %v\n", name, time.Since(start))
		}
	}
}
