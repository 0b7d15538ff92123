package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"reminderd/internal/reminder"
)

type TasksCmd struct {
	flags *Flags

	// add flags
	title       string
	due         string
	phone       string
	priority    string
	description string

	// done / reschedule flags
	id int
}

func NewTasksCmd(flags *Flags) *TasksCmd {
	return &TasksCmd{flags: flags}
}

func (cmd *TasksCmd) Register(root *cli.Command) *cli.Command {
	idFlag := func() cli.Flag {
		return &cli.IntFlag{
			Name:        "id",
			Usage:       "task id",
			Required:    true,
			Destination: &cmd.id,
		}
	}
	dueFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:        "due",
			Usage:       `deadline: RFC3339, "2006-01-02 15:04" (local) or a duration from now like 2h`,
			Required:    true,
			Destination: &cmd.due,
		}
	}

	root.Commands = append(root.Commands, &cli.Command{
		Name:  "tasks",
		Usage: "Seed and inspect the task store",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a task",
				UsageText: `reminderd tasks add --title "Pay rent" --due 2h --phone 5551234567`,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "task title", Required: true, Destination: &cmd.title},
					dueFlag(),
					&cli.StringFlag{Name: "phone", Usage: "reminder destination", Required: true, Destination: &cmd.phone},
					&cli.StringFlag{Name: "priority", Usage: "low, medium or high", Value: "medium", Destination: &cmd.priority},
					&cli.StringFlag{Name: "description", Usage: "optional details", Destination: &cmd.description},
				},
				Action: cmd.runAdd,
			},
			{
				Name:   "list",
				Usage:  "List all tasks by deadline",
				Action: cmd.runList,
			},
			{
				Name:   "done",
				Usage:  "Mark a task completed",
				Flags:  []cli.Flag{idFlag()},
				Action: cmd.runDone,
			},
			{
				Name:   "reschedule",
				Usage:  "Move a deadline and re-arm its reminder",
				Flags:  []cli.Flag{idFlag(), dueFlag()},
				Action: cmd.runReschedule,
			},
		},
	})
	return root
}

func (cmd *TasksCmd) runAdd(ctx context.Context, _ *cli.Command) error {
	prio, err := reminder.ParsePriority(cmd.priority)
	if err != nil {
		return err
	}
	due, err := parseDue(cmd.due, time.Now(), time.Local)
	if err != nil {
		return err
	}

	st, err := openStore(cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	t, err := st.CreateTask(ctx, reminder.Task{
		Title:       cmd.title,
		Description: cmd.description,
		DueAt:       due,
		Priority:    prio,
		Destination: cmd.phone,
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	fmt.Fprintf(os.Stdout, "created task %d due %s\n", t.ID, t.DueAt.Local().Format(time.RFC3339))
	return nil
}

func (cmd *TasksCmd) runList(ctx context.Context, _ *cli.Command) error {
	st, err := openStore(cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	tasks, err := st.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDUE\tSTATUS\tPRIORITY\tREMINDED\tDESTINATION\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\t%s\n",
			t.ID, t.DueAt.Local().Format("2006-01-02 15:04"), t.Status, t.Priority, t.ReminderSent, t.Destination, t.Title)
	}
	return w.Flush()
}

func (cmd *TasksCmd) runDone(ctx context.Context, _ *cli.Command) error {
	st, err := openStore(cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.SetStatus(ctx, int64(cmd.id), reminder.StatusCompleted); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "task %d completed\n", cmd.id)
	return nil
}

func (cmd *TasksCmd) runReschedule(ctx context.Context, _ *cli.Command) error {
	due, err := parseDue(cmd.due, time.Now(), time.Local)
	if err != nil {
		return err
	}
	st, err := openStore(cmd.flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.UpdateDueAt(ctx, int64(cmd.id), due); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "task %d due %s\n", cmd.id, due.Local().Format(time.RFC3339))
	return nil
}
