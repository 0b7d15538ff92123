package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"reminderd/internal/eventbus"
	logx "reminderd/pkg/logx"
)

type Result string

const (
	ResultSent    Result = "sent"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// DispatchOutcome is the per-task result. Err explains a failed or skipped
// dispatch; on a sent outcome it carries a non-fatal mark error, if any.
type DispatchOutcome struct {
	TaskID     int64
	Result     Result
	DeliveryID string
	Err        error
}

// Escalation is the payload of an eventbus.TypeEscalated event.
type Escalation struct {
	TaskID   int64  `json:"task_id"`
	Title    string `json:"title"`
	Failures int    `json:"failures"`
}

// Dispatcher processes a single task. It never returns an error or panics;
// every problem is folded into the outcome and the audit trail.
type Dispatcher struct {
	store TaskStore
	ch    Channel
	bus   eventbus.Bus
	now   func() time.Time
	log   logx.Logger
	opts  func() Options
}

func (d *Dispatcher) Process(ctx context.Context, t Task) (out DispatchOutcome) {
	out = DispatchOutcome{TaskID: t.ID}
	opts := d.opts()
	log := d.log.With(logx.Int64("task_id", t.ID))

	// delivered flips once the channel accepted the message; after that a
	// panic cannot turn the outcome back into a failure.
	delivered := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			if delivered {
				out.Result = ResultSent
				return
			}
			d.appendFailed(ctx, log, t.ID, t.Destination, "", ErrInternalDispatch.Error())
			out = DispatchOutcome{TaskID: t.ID, Result: ResultFailed, Err: fmt.Errorf("%w: %v", ErrInternalDispatch, r)}
		}
	}()

	if n, hit := d.ceilingReached(ctx, log, t, opts); hit {
		log.Warn("reminder retry ceiling reached, skipping", logx.String("title", t.Title), logx.Int("failures", n), logx.Int("max_attempts", opts.MaxAttempts))
		if d.bus != nil {
			d.bus.Publish(eventbus.Event{Type: eventbus.TypeEscalated, Data: Escalation{TaskID: t.ID, Title: t.Title, Failures: n}})
		}
		out.Result = ResultSkipped
		out.Err = ErrRetryCeiling
		return out
	}

	dest := NormalizePhone(t.Destination, opts.CountryCode)
	if !ValidatePhone(dest) {
		log.Warn("invalid destination", logx.String("destination", t.Destination))
		d.appendFailed(ctx, log, t.ID, t.Destination, "", ErrInvalidDestination.Error())
		out.Result = ResultFailed
		out.Err = ErrInvalidDestination
		return out
	}

	msg := Format(t, d.now(), opts.Location)

	sendCtx := ctx
	if opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, opts.SendTimeout)
		defer cancel()
	}
	delivery, err := d.ch.Send(sendCtx, dest, msg)
	if err != nil {
		log.Warn("send failed", logx.String("destination", dest), logx.Err(err))
		d.appendFailed(ctx, log, t.ID, dest, msg, err.Error())
		out.Result = ResultFailed
		out.Err = fmt.Errorf("send: %w", err)
		return out
	}

	delivered = true
	out.Result = ResultSent
	out.DeliveryID = delivery.ID

	if err := d.store.MarkReminderSent(ctx, t.ID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			log.Warn("task vanished before it could be marked", logx.Err(err))
		} else {
			log.Error("mark reminder sent failed", logx.Err(err))
			out.Err = fmt.Errorf("mark reminder sent: %w", err)
		}
	}

	sentAt := d.now()
	rec := NotificationRecord{
		TaskID:      t.ID,
		Destination: dest,
		Message:     msg,
		Outcome:     OutcomeSent,
		SentAt:      &sentAt,
		DeliveryID:  delivery.ID,
		CreatedAt:   sentAt,
	}
	if err := d.store.AppendNotification(ctx, rec); err != nil {
		log.Warn("notification log append failed", logx.Err(err))
	}
	log.Info("reminder sent", logx.String("title", t.Title), logx.String("delivery_id", delivery.ID))
	return out
}

func (d *Dispatcher) ceilingReached(ctx context.Context, log logx.Logger, t Task, opts Options) (int, bool) {
	if opts.MaxAttempts <= 0 {
		return 0, false
	}
	fc, ok := d.store.(FailureCounter)
	if !ok {
		return 0, false
	}
	n, err := fc.CountFailures(ctx, t.ID, t.UpdatedAt)
	if err != nil {
		log.Warn("count failures failed; dispatching anyway", logx.Err(err))
		return 0, false
	}
	return n, n >= opts.MaxAttempts
}

func (d *Dispatcher) appendFailed(ctx context.Context, log logx.Logger, taskID int64, dest, msg, detail string) {
	rec := NotificationRecord{
		TaskID:      taskID,
		Destination: dest,
		Message:     msg,
		Outcome:     OutcomeFailed,
		ErrorDetail: detail,
		CreatedAt:   d.now(),
	}
	if err := d.store.AppendNotification(ctx, rec); err != nil {
		log.Warn("notification log append failed", logx.Err(err))
	}
}
