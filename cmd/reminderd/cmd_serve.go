package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli/v3"

	"reminderd/internal/app"
	logx "reminderd/pkg/logx"
)

const stopTimeout = 15 * time.Second

type ServeCmd struct {
	flags *Flags
}

func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

func (cmd *ServeCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:   "serve",
		Usage:  "Run the reminder daemon (default)",
		Action: cmd.run,
	})
	return root
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.NewApp(cmd.flags.ConfigPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return err
	}
	log := a.Logger()
	notify(log, daemon.SdNotifyReady)

	reason := app.StopAppStop
	select {
	case s := <-sigs:
		reason = app.StopSIGTERM
		if s == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	case <-ctx.Done():
	}

	notify(log, daemon.SdNotifyStopping)
	fatal := a.Err()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	if reason == app.StopFatalError {
		return fatal
	}
	return nil
}

// notify tells systemd about state changes. It is a no-op outside a
// Type=notify unit.
func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
