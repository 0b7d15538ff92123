package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// Populated at build time via -ldflags.
var version = "dev"

// Flags are the global flags shared by every command.
type Flags struct {
	ConfigPath string
}

func main() {
	flags := &Flags{}
	serve := NewServeCmd(flags)

	app := &cli.Command{
		Name:      "reminderd",
		Usage:     "Send reminders for tasks whose deadline has arrived",
		UsageText: "reminderd [--config path] [command]",
		Description: `Without a command reminderd runs the daemon: a timer checks for due tasks
and sends one reminder per task through the configured channel.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file (yaml or json)",
				Sources:     cli.EnvVars("REMINDERD_CONFIG"),
				Value:       "./config.yaml",
				Destination: &flags.ConfigPath,
			},
		},
		Action: serve.run,
	}

	serve.Register(app)
	NewCheckCmd(flags).Register(app)
	NewTasksCmd(flags).Register(app)
	NewHistoryCmd(flags).Register(app)

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
