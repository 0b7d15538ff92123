package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"reminderd/internal/app"
)

type CheckCmd struct {
	flags *Flags
}

func NewCheckCmd(flags *Flags) *CheckCmd {
	return &CheckCmd{flags: flags}
}

func (cmd *CheckCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:  "check",
		Usage: "Run one reminder batch now and print the counts",
		Description: `Selects due tasks, sends their reminders and exits. Safe to run next to a
daemon only when both point at a store that serializes writes (sqlite).`,
		Action: cmd.run,
	})
	return root
}

func (cmd *CheckCmd) run(ctx context.Context, _ *cli.Command) error {
	a, err := app.NewApp(cmd.flags.ConfigPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res := a.Check(ctx)
	if res.Err != nil {
		return res.Err
	}
	fmt.Fprintf(os.Stdout, "attempted=%d succeeded=%d failed=%d skipped=%d took=%s\n",
		res.Attempted, res.Succeeded, res.Failed, res.Skipped, res.Duration)
	return nil
}
