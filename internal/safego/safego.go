// Package safego provides a panic-recovering goroutine launcher for work that outlives
// the request that started it.
package safego

import "log/slog"

// Go launches fn in a new goroutine. A panic in fn is recovered and logged under name
// instead of crashing the process.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
			}
		}()
		fn()
	}()
}
