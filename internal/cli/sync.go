package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/devsync/internal/engine"
	"github.com/roach88/devsync/internal/journal"
	"github.com/roach88/devsync/internal/store"
	"github.com/roach88/devsync/internal/tenant"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	MongoDBURI  string
	TenantIDs   []string
	TenantLimit string
	Mode        string
	Journal     string
	ConfigPath  string

	// Test seams. When Store is set, no MongoDB connection is opened;
	// Source, Recorder, and RunID override their production defaults.
	Store    engine.DeviceStore
	Source   tenant.Source
	Recorder engine.Recorder
	RunID    string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile inventory projections against deviceauth",
		Long: `Run one bounded reconciliation pass.

Tenants are resolved from tenantadm (an explicit --tenant-id set, every
tenant up to --tenant-limit, or all tenants) and processed sequentially
in descending id order. For each tenant, deviceauth is scanned forward
and every drifted inventory projection receives the smallest targeted
correction; a reverse scan deletes orphaned projections when the counts
disagree. deviceauth is never written.

Example:
  devsync sync --mongodb-uri mongodb://localhost:27017
  devsync sync --tenant-id 5f2a --tenant-id 81c0 --mode backfill --verbose
  devsync sync --tenant-limit 7fff --journal ./drift.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MongoDBURI, "mongodb-uri", "mongodb://localhost:27017", "connection URI to the mongodb")
	cmd.Flags().StringArrayVar(&opts.TenantIDs, "tenant-id", nil, "tenant id to process (repeatable; takes precedence over --tenant-limit)")
	cmd.Flags().StringVar(&opts.TenantLimit, "tenant-limit", "", "process every tenant with id lexicographically <= this bound (inclusive)")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(engine.ModeConservative), "operating mode (conservative|backfill)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to a sqlite drift journal (optional)")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a yaml config file (flags take precedence)")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	// Verbosity is resolved once here; components receive the logger,
	// never a global.
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	if opts.ConfigPath != "" {
		cfg, err := LoadConfig(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		applyConfig(opts, cfg, cmd.Flags().Changed)
	}

	mode, err := engine.ParseMode(opts.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	devices := opts.Store
	source := opts.Source
	if devices == nil {
		log.Info("connecting to mongodb", "uri", opts.MongoDBURI)
		ds, err := store.Open(ctx, opts.MongoDBURI)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to connect to mongodb", err)
		}
		defer func() {
			if closeErr := ds.Close(ctx); closeErr != nil {
				log.Error("error closing mongodb connection", "error", closeErr)
			}
		}()
		devices = ds
		if source == nil {
			source = ds
		}
	}

	if source == nil {
		return WrapExitError(ExitCommandError, "no tenant source configured", nil)
	}

	recorder := opts.Recorder
	if recorder == nil && opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		recorder = j
	}

	tenants, err := tenant.NewSelector(source, log).Resolve(ctx, tenant.Filter{
		IDs:  opts.TenantIDs,
		UpTo: opts.TenantLimit,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to resolve tenants", err)
	}

	engOpts := []engine.Option{engine.WithMode(mode)}
	if recorder != nil {
		engOpts = append(engOpts, engine.WithRecorder(recorder))
	}
	if opts.RunID != "" {
		engOpts = append(engOpts, engine.WithRunID(opts.RunID))
	}
	rec := engine.New(devices, log, engOpts...)

	run := engine.RunStats{RunID: rec.RunID(), Mode: rec.Mode()}
	for i, id := range tenants {
		log.Info("processing tenant",
			"tenant", id,
			"n", i+1,
			"total", len(tenants),
		)
		stats, err := rec.ReconcileTenant(ctx, id)
		run.Add(stats)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("reconciliation failed on tenant %s", id), err)
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(run, run.Render)
}
