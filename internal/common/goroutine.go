// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected background work
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var (
	goroutinesStarted atomic.Int64
	goroutinesRunning atomic.Int64
)

// GetGoroutineCount returns how many SafeGo goroutines are still running
func GetGoroutineCount() int64 {
	return goroutinesRunning.Load()
}

// GetGoroutinesStarted returns how many SafeGo goroutines were ever started
func GetGoroutinesStarted() int64 {
	return goroutinesStarted.Load()
}

// SafeGo runs fn in a goroutine. A panic is logged with its stack and the desk keeps running.
//
//	common.SafeGo(logger, "initial-sync", func() {
//	    _ = scheduler.TriggerSync(ctx)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	goroutinesStarted.Add(1)
	goroutinesRunning.Add(1)

	go func() {
		defer goroutinesRunning.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				reportPanic(logger, name, r)
			}
		}()

		fn()
	}()
}

func reportPanic(logger arbor.ILogger, name string, r interface{}) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	if logger == nil {
		fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, buf[:n])
		return
	}
	logger.Error().
		Str("goroutine", name).
		Str("panic", fmt.Sprintf("%v", r)).
		Str("stack", string(buf[:n])).
		Msg("Recovered from panic in background task")
}
