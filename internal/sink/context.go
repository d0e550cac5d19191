package sink

import (
	"context"
	"time"
)

// DefaultTimeout bounds every blocking sink call when Options.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// OperationContext creates a context bounded by d, or DefaultTimeout when d is
// not positive.
func OperationContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(parent, d)
}

// CloseContext creates a context for releasing a connection. It ignores
// cancellation of parent so a connection is released even after the
// operation that used it timed out.
func CloseContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return OperationContext(context.WithoutCancel(parent), d)
}
