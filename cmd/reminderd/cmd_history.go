package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

type HistoryCmd struct {
	flags *Flags

	taskID int
	limit  int
}

func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

func (cmd *HistoryCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "history",
		Usage:     "Show the notification log, newest first",
		UsageText: "reminderd history [--task ID] [--limit N]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "task", Usage: "only this task (0 = all)", Destination: &cmd.taskID},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "max records (0 = all)", Value: 20, Destination: &cmd.limit},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *HistoryCmd) run(ctx context.Context, _ *cli.Command) error {
	st, err := openStore(cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	recs, err := st.ListNotifications(ctx, int64(cmd.taskID), cmd.limit)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "No notifications found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tAT\tOUTCOME\tDESTINATION\tDETAIL")
	for _, r := range recs {
		detail := r.ErrorDetail
		if detail == "" {
			detail = r.DeliveryID
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.TaskID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Outcome, r.Destination, detail)
	}
	return w.Flush()
}
