// Package async provides safe concurrent execution primitives for background tasks.
package async

import (
	"context"
	"log"
	"runtime/debug"
	"time"
)

// SafeGo executes a function in a goroutine with context cancellation,
// panic recovery and timeout enforcement.
//
// Use this instead of bare `go func()` for post-response work such as
// incremental index updates and cache invalidation: a panic or hang in a
// derived-data layer must never take down the request worker.
//
// Example:
//
//	SafeGo(r.Context(), 5*time.Second, "index document", func(ctx context.Context) error {
//	    return indexer.IndexRecord(ctx, kind, record)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	// Detach from the request context's cancellation but keep its values;
	// the task should outlive the response.
	base := context.WithoutCancel(parentCtx)
	go func() {
		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
