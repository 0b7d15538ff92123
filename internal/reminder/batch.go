package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reminderd/internal/eventbus"
	logx "reminderd/pkg/logx"
)

// BatchResult summarizes one batch. Attempted counts dispatches that reached
// the sent or failed state; Skipped counts tasks held back by the retry
// ceiling. Err is a batch-level failure such as an unreadable due set.
type BatchResult struct {
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Runner drives the Dispatcher over the due set.
type Runner struct {
	store TaskStore
	disp  *Dispatcher
	bus   eventbus.Bus
	now   func() time.Time
	log   logx.Logger

	mu          sync.RWMutex
	opts        Options
	pacer       Pacer
	customPacer bool
}

func New(store TaskStore, ch Channel, opts Options, log logx.Logger, extra ...Option) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{
		store: store,
		now:   time.Now,
		log:   log.With(logx.String("comp", "reminder")),
		opts:  opts.normalized(),
	}
	for _, o := range extra {
		o(r)
	}
	if r.pacer == nil {
		r.pacer = FixedDelay(r.opts.Pacing)
	}
	r.disp = &Dispatcher{
		store: store,
		ch:    ch,
		bus:   r.bus,
		now:   r.now,
		log:   r.log,
		opts:  r.Options,
	}
	return r
}

func (r *Runner) Dispatcher() *Dispatcher { return r.disp }

func (r *Runner) Options() Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts
}

// Apply swaps options at runtime. A batch in flight keeps the pacer it
// started with.
func (r *Runner) Apply(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = opts.normalized()
	if !r.customPacer {
		r.pacer = FixedDelay(r.opts.Pacing)
	}
}

func (r *Runner) snapshot() (Options, Pacer) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts, r.pacer
}

// RunBatch processes every due task in order. Per-task failures never abort
// the batch and no error escapes; a cancelled ctx stops pacing and leaves the
// remainder eligible for the next batch.
func (r *Runner) RunBatch(ctx context.Context) (res BatchResult) {
	opts, pacer := r.snapshot()
	start := time.Now()
	res.StartedAt = r.now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("batch panicked", logx.Any("panic", p))
			res.Err = fmt.Errorf("%w: %v", ErrInternalDispatch, p)
		}
		res.Duration = time.Since(start)
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{Type: eventbus.TypeBatchCompleted, Data: res})
		}
	}()

	tasks, err := r.store.ListDueTasks(ctx, res.StartedAt.Add(opts.DueWindow))
	if err != nil {
		res.Err = fmt.Errorf("list due tasks: %w", err)
		r.log.Error("due task query failed", logx.Err(err))
		return res
	}
	if len(tasks) == 0 {
		r.log.Debug("no due tasks")
		return res
	}
	r.log.Info("due tasks found", logx.Int("count", len(tasks)))

	paceNext := false
	for i, t := range tasks {
		if paceNext {
			if err := pacer.Wait(ctx); err != nil {
				res.Err = fmt.Errorf("pacing interrupted: %w", err)
				r.log.Warn("batch interrupted", logx.Int("remaining", len(tasks)-i), logx.Err(err))
				return res
			}
		}
		out := r.process(ctx, t)
		switch out.Result {
		case ResultSent:
			res.Attempted++
			res.Succeeded++
		case ResultSkipped:
			res.Skipped++
		default:
			res.Attempted++
			res.Failed++
		}
		paceNext = out.Result != ResultSkipped
	}
	return res
}

// process is the per-task boundary. Dispatcher recovers its own panics; this
// also covers a store that panics while the failure is being recorded.
func (r *Runner) process(ctx context.Context, t Task) (out DispatchOutcome) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("dispatch panicked while recording failure", logx.Int64("task_id", t.ID), logx.Any("panic", p))
			out = DispatchOutcome{TaskID: t.ID, Result: ResultFailed, Err: fmt.Errorf("%w: %v", ErrInternalDispatch, p)}
		}
	}()
	return r.disp.Process(ctx, t)
}
