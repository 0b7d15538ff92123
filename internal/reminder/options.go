package reminder

import (
	"time"

	"reminderd/internal/eventbus"
)

// Options are the tunables of a Runner and its Dispatcher. They can be
// replaced at runtime through Runner.Apply.
type Options struct {
	DueWindow   time.Duration
	Pacing      time.Duration
	SendTimeout time.Duration
	// MaxAttempts caps failed attempts per task since its last edit.
	// Zero means unlimited.
	MaxAttempts int
	CountryCode string
	Location    *time.Location
}

func DefaultOptions() Options {
	return Options{
		DueWindow:   time.Hour,
		Pacing:      time.Second,
		SendTimeout: 10 * time.Second,
		CountryCode: "1",
		Location:    time.UTC,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.DueWindow <= 0 {
		o.DueWindow = d.DueWindow
	}
	if o.Pacing < 0 {
		o.Pacing = 0
	}
	if o.SendTimeout < 0 {
		o.SendTimeout = 0
	}
	if o.MaxAttempts < 0 {
		o.MaxAttempts = 0
	}
	if o.CountryCode == "" {
		o.CountryCode = d.CountryCode
	}
	if o.Location == nil {
		o.Location = d.Location
	}
	return o
}

// Option wires optional collaborators into New.
type Option func(*Runner)

// WithClock replaces time.Now for due-set selection, formatting and records.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithPacer replaces the FixedDelay pacer derived from Options.Pacing.
func WithPacer(p Pacer) Option {
	return func(r *Runner) {
		if p != nil {
			r.pacer = p
			r.customPacer = true
		}
	}
}

// WithBus publishes batch and escalation events to bus.
func WithBus(bus eventbus.Bus) Option {
	return func(r *Runner) { r.bus = bus }
}
