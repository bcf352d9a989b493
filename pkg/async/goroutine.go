// Package async provides safe goroutine execution for best-effort
// side work such as invite email delivery.
package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/seatsync/seatsync/pkg/observability"
)

// SafeGo executes fn in a goroutine with panic recovery and a bounded
// timeout. The parent context's values are kept but its cancellation
// is not, so request-scoped work can outlive the request.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}
