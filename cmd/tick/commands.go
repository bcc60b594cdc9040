// cmd/tick/commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/unclebandit/content-pipeline/internal/app"
	"github.com/unclebandit/content-pipeline/internal/config"
	"github.com/unclebandit/content-pipeline/internal/db"
	"github.com/unclebandit/content-pipeline/internal/logging"
)

type tickOptions struct {
	now string
}

// clock resolves --now, defaulting to the wall clock in UTC.
func (o *tickOptions) clock() (time.Time, error) {
	if o.now == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, o.now)
	if err != nil {
		return time.Time{}, fmt.Errorf("--now: %w", err)
	}
	return t.UTC(), nil
}

func newRootCmd() *cobra.Command {
	opts := &tickOptions{}
	root := &cobra.Command{
		Use:           "tick",
		Short:         "Run one pipeline step; meant to be invoked by an external scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.now, "now", "", "tick time as RFC3339 (default: current time)")

	root.AddCommand(
		newDispatchCmd(opts),
		newHealthCmd(opts),
		newSummaryCmd(opts),
		newCleanupCmd(opts),
		newMigrateCmd(),
	)
	return root
}

// withApp loads config, builds the pipeline and runs fn against it.
func withApp(cmd *cobra.Command, component string, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log, "tick").WithField("command", component)

	a, err := app.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDispatchCmd(opts *tickOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Publish every item due at --now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := opts.clock()
			if err != nil {
				return err
			}
			return withApp(cmd, "dispatch", func(ctx context.Context, a *app.App) error {
				result, err := a.Pipeline.RunDispatchTick(ctx, now)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func newHealthCmd(opts *tickOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Evaluate every health condition and send alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := opts.clock()
			if err != nil {
				return err
			}
			return withApp(cmd, "health", func(ctx context.Context, a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Pipeline.RunHealthCheckTick(ctx, now))
			})
		},
	}
}

func newSummaryCmd(opts *tickOptions) *cobra.Command {
	var date string
	var send bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Build the daily summary (yesterday by default) and optionally send it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := opts.clock()
			if err != nil {
				return err
			}
			day := now.AddDate(0, 0, -1)
			if date != "" {
				if day, err = time.Parse(time.DateOnly, date); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			return withApp(cmd, "summary", func(ctx context.Context, a *app.App) error {
				if !send {
					summary, err := a.Pipeline.GenerateDailySummary(ctx, day)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), summary)
				}
				summary, sent, err := a.Pipeline.SendDailySummary(ctx, day, now)
				if err != nil {
					return err
				}
				if !sent {
					a.Log.WithField("date", summary.Date).Warn("summary was not delivered")
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to summarize as YYYY-MM-DD")
	cmd.Flags().BoolVar(&send, "send", true, "send the summary to the notifier")
	return cmd
}

func newCleanupCmd(opts *tickOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge pipeline events older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := opts.clock()
			if err != nil {
				return err
			}
			return withApp(cmd, "cleanup", func(ctx context.Context, a *app.App) error {
				removed, err := a.Pipeline.Cleanup(ctx, now, days)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"removed": removed})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "purge events older than this many days (default: EVENTS_RETENTION_DAYS)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log, "tick").WithField("command", "migrate")

			conn, err := db.Open(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.Migrate(cmd.Context(), conn, log); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"status": "ok"}).Info("migrations applied")
			return nil
		},
	}
}
