package reminder

import (
	"context"
	"time"
)

// Pacer spaces out dispatches within a batch. Wait is called after a dispatch
// completes and before the next one starts.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedDelay waits the same interval every time. Zero or negative means no wait.
type FixedDelay time.Duration

func (d FixedDelay) Wait(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
