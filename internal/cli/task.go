package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"deadlinebot/internal/app"
	"deadlinebot/internal/config"
	"deadlinebot/internal/storage"
	"deadlinebot/internal/tasks"
	logx "deadlinebot/pkg/logx"

	"github.com/spf13/cobra"
)

// NewTaskCommand groups offline task management against the configured store.
func NewTaskCommand(rootOpts *RootOptions) *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks directly in the store",
	}
	cmd.PersistentFlags().Int64Var(&owner, "owner", 0, "owner (Telegram user id)")
	_ = cmd.MarkPersistentFlagRequired("owner")

	cmd.AddCommand(&cobra.Command{
		Use:   "add <subject> <title> <deadline...>",
		Short: "Register a task",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTasks(cmd.Context(), rootOpts, func(ctx context.Context, svc *tasks.Service) error {
				id, err := svc.Create(ctx, owner, args[0], args[1], strings.Join(args[2:], " "))
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, map[string]int64{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "task #%d registered\n", id)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List open tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTasks(cmd.Context(), rootOpts, func(ctx context.Context, svc *tasks.Service) error {
				open, err := svc.ListOpen(ctx, owner)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, taskRows(open), func(w io.Writer) {
					if len(open) == 0 {
						fmt.Fprintln(w, "no open tasks")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tDEADLINE\tSUBJECT\tTITLE")
					for _, t := range open {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.ID, t.Deadline.Local().Format("2006-01-02 15:04"), t.Subject, t.Title)
					}
					_ = tw.Flush()
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task as submitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return withTasks(cmd.Context(), rootOpts, func(ctx context.Context, svc *tasks.Service) error {
				ok, err := svc.Submit(ctx, owner, id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task #%d not found among open tasks of %d", id, owner)
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, map[string]any{"id": id, "submitted": true}, func(w io.Writer) {
					fmt.Fprintf(w, "task #%d submitted\n", id)
				})
			})
		},
	})
	return cmd
}

type taskRow struct {
	ID       int64     `json:"id"`
	Subject  string    `json:"subject"`
	Title    string    `json:"title"`
	Deadline time.Time `json:"deadline"`
}

func taskRows(ts []storage.Task) []taskRow {
	out := make([]taskRow, 0, len(ts))
	for _, t := range ts {
		out = append(out, taskRow{ID: t.ID, Subject: t.Subject, Title: t.Title, Deadline: t.Deadline})
	}
	return out
}

// withTasks opens the configured store for the duration of fn.
func withTasks(ctx context.Context, opts *RootOptions, fn func(context.Context, *tasks.Service) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.NewManager(opts.ConfigPath).Parse()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sc, err := app.MapStorageConfig(cfg)
	if err != nil {
		return err
	}
	log := logx.NewConsole("warn")
	st, err := storage.Open(sc, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	err = fn(ctx, tasks.NewService(st, log))
	var ve *tasks.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("invalid input: %w", err)
	}
	return err
}

func output(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
