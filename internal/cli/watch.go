package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paneldiff/paneldiff/internal/notify"
	"github.com/paneldiff/paneldiff/internal/reconcile"
	"github.com/paneldiff/paneldiff/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Database string
	Config   string
	Session  string
	Surface  string
	RedisURL string
	Quiet    time.Duration
	MaxWait  time.Duration
	Poll     time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the reconciliation service until interrupted",
		Long: `Run the debounced reconciliation loop against a session. An immediate
first pass renders the panels, then the command polls the database for
writes from other processes (a set command, another tool) and schedules
a pass after each burst settles. Stop with Ctrl-C.

Exit codes:
  0 - stopped cleanly
  2 - command execution error (bad config, database error)

Examples:
  paneldiff watch --db ./panels.db --config ./panels.yaml
  paneldiff watch --db ./panels.db --session chat-7 --quiet 500ms --max-wait 3s
  paneldiff watch --db ./panels.db --redis redis://localhost:6379/0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "panel configuration file (default: built-in panels)")
	cmd.Flags().StringVar(&opts.Session, "session", DefaultSession, "session whose data to watch")
	cmd.Flags().StringVar(&opts.Surface, "surface", DefaultSurface, "rendering surface identity")
	cmd.Flags().StringVar(&opts.RedisURL, "redis", "", "Redis URL for fingerprint storage (default: SQLite)")
	cmd.Flags().DurationVar(&opts.Quiet, "quiet", reconcile.DefaultQuiet, "debounce quiet period")
	cmd.Flags().DurationVar(&opts.MaxWait, "max-wait", reconcile.DefaultMaxWait, "max delay before a pass runs under sustained writes")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 500*time.Millisecond, "database poll interval")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	log := newRunLogger(opts.Verbose, cmd.ErrOrStderr())

	_, schema, err := loadSchema(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load panel configuration", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	surfaces, closer, err := openSurfaces(st, opts.RedisURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open surface store", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			formatter.VerboseLog("Received signal %v, shutting down...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	ctrl := newController(schema, st, surfaces, opts.Surface, log)
	bus := notify.NewBus()
	defer bus.Close()
	svc := reconcile.NewService(ctrl, bus, st, opts.Session,
		reconcile.WithDebounce(opts.Quiet, opts.MaxWait),
		reconcile.WithServiceLogger(log))

	// Immediate first pass so the panels render before the loop idles.
	out, err := svc.RunOnce(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "initial pass failed", err)
	}
	fmt.Fprintf(formatter.GetErrWriter(), "Pass %s: %s (%s)\n", out.Token, out.Decision, out.Reason)
	fmt.Fprintf(formatter.GetErrWriter(), "Watching session %q (surface %q). Press Ctrl-C to stop.\n",
		opts.Session, opts.Surface)

	go watchDataVersion(ctx, st, opts.Poll, func() {
		bus.Publish(notify.Signal{Kind: notify.KindDataChanged, SessionID: opts.Session})
	})

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch loop failed", err)
	}
	fmt.Fprintln(formatter.GetErrWriter(), "Stopped.")
	return nil
}

// watchDataVersion polls SQLite's data_version pragma and invokes onChange
// whenever another connection has written to the database. The pragma only
// moves on foreign writes, so the watcher's own passes never retrigger it.
// Depends on the store's single-connection pool: values from different
// connections are not comparable.
func watchDataVersion(ctx context.Context, st *store.Store, every time.Duration, onChange func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last, _ := readDataVersion(ctx, st)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := readDataVersion(ctx, st)
			if err != nil {
				continue
			}
			if v != last {
				last = v
				onChange()
			}
		}
	}
}

func readDataVersion(ctx context.Context, st *store.Store) (int64, error) {
	rows, err := st.Query(ctx, "PRAGMA data_version")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var v int64
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return 0, err
		}
	}
	return v, rows.Err()
}
