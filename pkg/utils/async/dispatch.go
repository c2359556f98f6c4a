package async

import (
	"context"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
)

// Dispatch runs handler on its own goroutine after detaching it from the
// caller's context: the launch acknowledgment has already been written, so
// cancellation of the request must not cancel the background work. The
// logger is carried over. Panics are recovered and logged with their stack,
// and a returned error is logged, never re-raised.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := ctxlog.With(context.Background(), ctxlog.From(ctx))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ctxlog.From(bgCtx).Error("panic in background job",
					"recover", r,
					"stack", string(debug.Stack()),
				)
			}
		}()

		if err := handler(bgCtx); err != nil {
			ctxlog.From(bgCtx).Error("background job failed", "error", err)
		}
	}()
}
