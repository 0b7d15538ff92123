package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

const (
	DefaultSchedule = "*/15 * * * *"
	batchKey        = "batch"
)

type Config struct {
	Enabled  bool
	Schedule string
	Timezone string // IANA TZ, e.g. "America/New_York"; empty means Local
}

// Validate checks the schedule and timezone without arming anything.
func (c Config) Validate() error {
	raw := strings.TrimSpace(c.Schedule)
	if raw == "" {
		raw = DefaultSchedule
	}
	spec, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	if _, err := cronParser().Parse(spec.CronSpec()); err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec.CronSpec(), err)
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone %q: %w", tz, err)
		}
	}
	return nil
}

// cronParser accepts both 5-field and 6-field (with seconds) specs plus
// descriptors like @hourly.
func cronParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Runner is the batch the scheduler drives.
type Runner interface {
	RunBatch(ctx context.Context) reminder.BatchResult
}

type Status struct {
	Running  bool                  `json:"running"`
	NextRun  *time.Time            `json:"next_run"`
	LastRun  *reminder.BatchResult `json:"last_run,omitempty"`
	Schedule string                `json:"schedule"`
	InFlight bool                  `json:"in_flight"`
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	runner Runner
	parser cron.Parser

	c       *cron.Cron
	entry   cron.EntryID
	sched   cron.Schedule
	loc     *time.Location
	base    context.Context
	startup chan struct{}

	group singleflight.Group

	bmu      sync.Mutex
	inflight chan struct{} // closed when the current batch finishes
	last     *reminder.BatchResult
}

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		runner: runner,
		log:    log.With(logx.String("comp", "scheduler")),
		parser: cronParser(),
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start arms the cron entry and fires one immediate batch. Calling Start on a
// running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	s.base = context.WithoutCancel(ctx)
	if err := s.armLocked(); err != nil {
		return err
	}

	done := make(chan struct{})
	s.startup = done
	go func() {
		defer close(done)
		s.trigger(s.base, "startup")
	}()

	s.log.Info("service started", logx.String("schedule", s.scheduleLocked()), logx.String("tz", s.loc.String()))
	return nil
}

// Stop removes future firings and waits, bounded by ctx, for a batch that is
// already running. Stopping a stopped service is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, startup := s.c, s.startup
	s.c, s.startup = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	start := time.Now()
	s.log.Info("stop requested")

	// Cron's stop context completes once running callbacks return.
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if startup != nil {
		select {
		case <-startup:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if done := s.inflightDone(); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return nil
}

// Trigger runs a batch through the same path as the timer, in any state. If a
// batch is already in flight the caller waits for it and gets its result.
// ctx bounds only the wait; the batch itself is never interrupted.
func (s *Service) Trigger(ctx context.Context) reminder.BatchResult {
	res, _ := s.trigger(ctx, "manual")
	return res
}

func (s *Service) trigger(ctx context.Context, source string) (reminder.BatchResult, bool) {
	batchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(batchKey, func() (any, error) {
		done := s.beginBatch()
		defer s.endBatch(done)

		s.log.Debug("batch started", logx.String("source", source))
		res := s.runner.RunBatch(batchCtx)
		s.recordLast(res)

		fields := []logx.Field{
			logx.String("source", source),
			logx.Int("attempted", res.Attempted),
			logx.Int("succeeded", res.Succeeded),
			logx.Int("failed", res.Failed),
			logx.Int("skipped", res.Skipped),
			logx.Duration("took", res.Duration),
		}
		if res.Err != nil {
			s.log.Error("batch finished with error", append(fields, logx.Err(res.Err))...)
		} else if res.Attempted > 0 || res.Skipped > 0 {
			s.log.Info("batch finished", fields...)
		} else {
			s.log.Debug("batch finished", fields...)
		}
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Shared {
			s.log.Debug("trigger coalesced into in-flight batch", logx.String("source", source))
		}
		res, _ := r.Val.(reminder.BatchResult)
		return res, r.Shared
	case <-ctx.Done():
		return reminder.BatchResult{Err: fmt.Errorf("wait for batch: %w", ctx.Err())}, false
	}
}

func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{Running: s.c != nil, Schedule: s.scheduleLocked()}
	if s.c != nil {
		next := s.c.Entry(s.entry).Next
		if next.IsZero() && s.sched != nil {
			next = s.sched.Next(time.Now().In(s.loc))
		}
		if !next.IsZero() {
			st.NextRun = &next
		}
	}
	s.mu.Unlock()

	s.bmu.Lock()
	st.InFlight = s.inflight != nil
	if s.last != nil {
		last := *s.last
		st.LastRun = &last
	}
	s.bmu.Unlock()
	return st
}

// Apply swaps the config at runtime. A schedule or timezone change re-arms
// the cron entry when running; an invalid schedule keeps the old one.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	if s.c == nil {
		return
	}
	if strings.TrimSpace(old.Schedule) == strings.TrimSpace(cfg.Schedule) &&
		strings.TrimSpace(old.Timezone) == strings.TrimSpace(cfg.Timezone) {
		return
	}

	prev := s.c
	if err := s.armLocked(); err != nil {
		s.log.Error("schedule change rejected; keeping previous", logx.String("schedule", cfg.Schedule), logx.Err(err))
		s.cfg.Schedule, s.cfg.Timezone = old.Schedule, old.Timezone
		return
	}
	// Callbacks of the old instance may still be running; they share the
	// single-flight group so they cannot overlap a new batch.
	prev.Stop()
	s.log.Info("schedule re-armed", logx.String("schedule", s.scheduleLocked()), logx.String("tz", s.loc.String()))
}

// armLocked builds and starts a cron instance for the current config.
// Call with s.mu held.
func (s *Service) armLocked() error {
	spec, err := ParseSchedule(s.scheduleLocked())
	if err != nil {
		return err
	}
	sched, err := s.parser.Parse(spec.CronSpec())
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec.CronSpec(), err)
	}

	loc := s.loadLocationLocked()
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	base := s.base
	s.entry = c.Schedule(sched, cron.FuncJob(func() { s.trigger(base, "cron") }))
	c.Start()

	s.c, s.sched, s.loc = c, sched, loc
	return nil
}

func (s *Service) scheduleLocked() string {
	if sc := strings.TrimSpace(s.cfg.Schedule); sc != "" {
		return sc
	}
	return DefaultSchedule
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) beginBatch() chan struct{} {
	done := make(chan struct{})
	s.bmu.Lock()
	s.inflight = done
	s.bmu.Unlock()
	return done
}

func (s *Service) endBatch(done chan struct{}) {
	s.bmu.Lock()
	if s.inflight == done {
		s.inflight = nil
	}
	s.bmu.Unlock()
	close(done)
}

func (s *Service) inflightDone() <-chan struct{} {
	s.bmu.Lock()
	defer s.bmu.Unlock()
	if s.inflight == nil {
		return nil
	}
	return s.inflight
}

func (s *Service) recordLast(res reminder.BatchResult) {
	s.bmu.Lock()
	s.last = &res
	s.bmu.Unlock()
}
