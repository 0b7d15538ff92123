package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"reminderd/internal/channel"
	"reminderd/internal/config"
	"reminderd/internal/eventbus"
	"reminderd/internal/httpapi"
	"reminderd/internal/reminder"
	"reminderd/internal/runtime/supervisor"
	"reminderd/internal/scheduler"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Memory

	store  storage.Store
	runner *reminder.Runner
	sched  *scheduler.Service
	http   *httpapi.Service
}

// NewApp loads and validates the config at cfgPath and wires every
// component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := Validate(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	a := &App{
		cfgm: cfgm,
		logs: logSvc,
		log:  log.With(logx.String("comp", "app")),
		bus:  eventbus.New(),
	}

	a.store, err = OpenStore(cfg, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	chCfg, _ := mapChannelConfig(cfg)
	ch, err := channel.Open(chCfg, log)
	if err != nil {
		_ = a.store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	opts, _ := mapReminderOptions(cfg)
	a.runner = reminder.New(a.store, ch, opts, log, reminder.WithBus(a.bus))
	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.runner, log)
	a.http = httpapi.New(mapHTTPConfig(cfg), a.sched, a.Err, log)
	return a, nil
}

// OpenStore opens the configured task store.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}

func (a *App) Store() storage.Store { return a.store }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Logger() logx.Logger { return a.log }

// Check runs one batch without starting the daemon.
func (a *App) Check(ctx context.Context) reminder.BatchResult {
	return a.sched.Trigger(ctx)
}

// Close releases the store and log sinks of an app that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional reload: a config that fails validation is never committed
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(Validate)

	if a.sched.Enabled() {
		if err := a.sched.Start(a.sup.Context()); err != nil {
			a.sup.Cancel()
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		a.log.Warn("scheduler disabled; reminders only run on manual check")
	}
	if a.http.Enabled() {
		a.http.Start(a.sup.Context())
	}

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				logEvent(a.log, e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts; only the newest config matters
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range []string{"storage", "channel"} {
		if slices.Contains(sections, s) {
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	a.logs.Apply(mapLoggingConfig(next))

	if opts, err := mapReminderOptions(next); err != nil {
		a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
	} else {
		a.runner.Apply(opts)
	}

	wasEnabled := a.sched.Enabled()
	scfg := mapSchedulerConfig(next)
	a.sched.Apply(scfg)
	switch {
	case wasEnabled && !scfg.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := a.sched.Stop(stopCtx); err != nil {
			a.log.Warn("scheduler stop incomplete", logx.Err(err))
		}
		cancel()
	case !wasEnabled && scfg.Enabled:
		a.log.Info("scheduler enabled via config")
		if err := a.sched.Start(ctx); err != nil {
			a.log.Error("scheduler start failed", logx.Err(err))
		}
	}

	a.http.Reconfigure(ctx, mapHTTPConfig(next))

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Background loops start unwinding now; batches run detached and are
	// drained by the scheduler step.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 10*time.Second, a.sched.Stop)
	a.step(ctx, "http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max (and never beyond ctx) so a
// stuck component cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}

// logEvent surfaces bus traffic. Escalations need an operator, everything
// else is debug noise.
func logEvent(log logx.Logger, e eventbus.Event) {
	if e.Type == eventbus.TypeEscalated {
		fields := []logx.Field{logx.Time("time", e.Time)}
		if esc, ok := e.Data.(reminder.Escalation); ok {
			fields = append(fields, logx.Int64("task_id", esc.TaskID), logx.String("title", esc.Title), logx.Int("failures", esc.Failures))
		}
		log.Warn("reminder escalated: retry ceiling reached", fields...)
		return
	}
	log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
}
