// Package groutine labels long-lived goroutines so they show up by
// name in pprof goroutine profiles.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go runs fn on a new goroutine carrying name as a pprof label. A nil
// parent falls back to context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}
	go pprof.Do(parent, pprof.Labels("goroutine_name", name), fn)
}
