package channel

import (
	"context"

	"github.com/google/uuid"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

// Simulated accepts every message and only logs it. Used when no transport
// credentials are configured.
type Simulated struct {
	log logx.Logger
}

func NewSimulated(log logx.Logger) *Simulated {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Simulated{log: log}
}

func (s *Simulated) Send(ctx context.Context, destination, message string) (reminder.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return reminder.Delivery{}, err
	}
	id := "simulated_" + uuid.NewString()
	s.log.Info("simulated SMS", logx.String("to", destination), logx.String("delivery_id", id), logx.String("message", message))
	return reminder.Delivery{ID: id}, nil
}
