package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tg_harvest/internal/config"
	"tg_harvest/internal/endpoint"
	"tg_harvest/internal/harvester"
	"tg_harvest/internal/notify"
	"tg_harvest/internal/pipeline"
	"tg_harvest/internal/ratelimit"
	"tg_harvest/internal/recordstore"
	"tg_harvest/internal/rules"
	"tg_harvest/internal/storage"
	"tg_harvest/internal/telegram"
)

type app struct {
	debug       bool
	metricsFile string

	cfg      *config.Config
	log      *slog.Logger
	notifier *notify.Notifier
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvest chat messages and tag them with keyword rules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the command")

	root.AddCommand(
		a.harvestCmd(),
		a.joinCmd(),
		a.leaveCmd(),
		a.extractCmd(),
		a.categorizeCmd(),
		a.statusCmd(),
	)
	return root
}

func (a *app) init() error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = newLogger(cfg.LogLevel, a.debug)
	if a.metricsFile == "" {
		a.metricsFile = cfg.MetricsFile
	}

	for _, p := range []string{cfg.MessagesPath, cfg.JournalPath, cfg.SessionPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("create data directory %s: %w", dir, err)
			}
		}
	}

	if cfg.NotifyEnabled() {
		n, err := notify.New(cfg.NotifyBotToken, cfg.NotifyChatID, a.log)
		if err != nil {
			a.log.Error("notifications disabled", "error", err)
		} else {
			a.notifier = n
		}
	}
	return nil
}

func (a *app) harvestCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Fetch recent messages from every chat in the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoints, err := endpoint.ReadList(a.cfg.ChatsPath)
			if err != nil {
				return err
			}
			return a.withHarvester(cmd.Context(), resume, func(ctx context.Context, h *harvester.Harvester) error {
				sum, err := h.Harvest(ctx, endpoints)
				a.report(cmd, sum, err)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "continue the latest unfinished harvest run")
	return cmd
}

func (a *app) joinCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join every chat in the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoints, err := endpoint.ReadList(a.cfg.ChatsPath)
			if err != nil {
				return err
			}
			return a.withHarvester(cmd.Context(), resume, func(ctx context.Context, h *harvester.Harvester) error {
				sum, err := h.Join(ctx, endpoints)
				a.report(cmd, sum, err)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "continue the latest unfinished join run")
	return cmd
}

func (a *app) leaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave every joined group and channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withHarvester(cmd.Context(), false, func(ctx context.Context, h *harvester.Harvester) error {
				sum, err := h.LeaveAll(ctx)
				a.report(cmd, sum, err)
				return err
			})
		},
	}
}

func (a *app) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Write the distinct source chats of the corpus to the chat list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := recordstore.New(a.cfg.MessagesPath).Read()
			if err != nil {
				return fmt.Errorf("read corpus: %w", err)
			}
			set, skipped := endpoint.FromRecords(records)
			if len(skipped) > 0 {
				a.log.Warn("records without source chat", "count", len(skipped), "indexes", skipped)
			}
			if err := endpoint.WriteList(a.cfg.ChatsPath, set); err != nil {
				return err
			}
			a.log.Info("chat list written", "path", a.cfg.ChatsPath, "chats", set.Len())
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d unique chats to %s\n", set.Len(), a.cfg.ChatsPath)
			return nil
		},
	}
}

func (a *app) categorizeCmd() *cobra.Command {
	var deleteLocationOnly bool
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Tag every record in the corpus with category labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := rules.LoadFile(a.cfg.RulesPath)
			if err != nil {
				return err
			}
			p := pipeline.New(rs, pipeline.Policy{DeleteLocationOnly: deleteLocationOnly}, a.log)
			res, err := p.Run(recordstore.New(a.cfg.MessagesPath))
			if err != nil {
				return err
			}
			text := notify.FormatCategorize(res, deleteLocationOnly)
			fmt.Fprint(cmd.OutOrStdout(), text)
			a.notifier.SendMessage(text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&deleteLocationOnly, "delete-location-only", false, "drop records whose only labels are locations")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	var (
		limit int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest journal runs, or the endpoints of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			journal, err := storage.NewSQLite(a.cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer func() { _ = journal.Close() }()

			ctx := cmd.Context()
			if runID != "" {
				run, err := journal.GetRun(ctx, runID)
				if err != nil {
					return fmt.Errorf("run %s: %w", runID, err)
				}
				results, err := journal.ListResults(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), notify.FormatRunResults(run, results))
				return nil
			}

			runs, err := journal.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), notify.FormatRuns(runs))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "show per-endpoint results of this run")
	return cmd
}

// withHarvester opens the journal, connects to the remote API and runs fn
// with a ready Harvester.
func (a *app) withHarvester(ctx context.Context, resume bool, fn func(ctx context.Context, h *harvester.Harvester) error) error {
	if err := a.cfg.ValidateRemote(); err != nil {
		return err
	}

	journal, err := storage.NewSQLite(a.cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = journal.Close() }()

	opts := harvester.DefaultOptions()
	opts.PageSize = a.cfg.PageSize
	opts.FetchDelay = a.cfg.HarvestDelay()
	opts.JoinDelay = a.cfg.JoinDelay()
	opts.LeaveDelay = a.cfg.HarvestDelay()
	tgOpts := telegram.Options{
		APIID:       a.cfg.APIID,
		APIHash:     a.cfg.APIHash,
		Phone:       a.cfg.Phone,
		Password:    a.cfg.Password,
		SessionPath: a.cfg.SessionPath,
		CodeIn:      os.Stdin,
		CodeOut:     os.Stdout,
	}

	return telegram.Run(ctx, tgOpts, func(ctx context.Context, c *telegram.Client) error {
		h := harvester.New(c, ratelimit.New(a.log), recordstore.New(a.cfg.MessagesPath), journal, opts, a.log)
		h.SetResume(resume)
		return fn(ctx, h)
	})
}

// report prints and sends the run summary, including for interrupted runs.
func (a *app) report(cmd *cobra.Command, sum harvester.Summary, err error) {
	if sum.RunID == "" {
		return
	}
	if errors.Is(err, context.Canceled) {
		a.log.Warn("run interrupted, continue it with --resume", "run_id", sum.RunID)
	}
	text := notify.FormatSummary(sum)
	fmt.Fprint(cmd.OutOrStdout(), text)
	a.notifier.SendMessage(text)
}
