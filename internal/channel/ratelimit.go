package channel

import (
	"context"

	"golang.org/x/time/rate"

	"reminderd/internal/reminder"
)

// RateLimited guards a channel with a token bucket so bursts of manual
// triggers cannot exceed the provider's send rate.
type RateLimited struct {
	next reminder.Channel
	lim  *rate.Limiter
}

func NewRateLimited(next reminder.Channel, perSec int) *RateLimited {
	if perSec <= 0 {
		perSec = 1
	}
	// Burst = rate per sec, so short spikes don't block too hard.
	return &RateLimited{next: next, lim: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

func (r *RateLimited) Send(ctx context.Context, destination, message string) (reminder.Delivery, error) {
	if err := r.lim.Wait(ctx); err != nil {
		return reminder.Delivery{}, err
	}
	return r.next.Send(ctx, destination, message)
}
