package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paneldiff/paneldiff/internal/reconcile"
	"github.com/paneldiff/paneldiff/internal/store"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Database string
	Config   string
	Session  string
	Surface  string
	RedisURL string
	Force    bool
}

// ChangedCellView is one cell rewrite in command output.
type ChangedCellView struct {
	Panel  string `json:"panel"`
	Row    int    `json:"row"`
	Entity string `json:"entity,omitempty"`
	Field  string `json:"field"`
	Key    string `json:"key"`
	Old    string `json:"old"`
	New    string `json:"new"`
}

// ReconcileResult holds the outcome of one pass.
type ReconcileResult struct {
	Token       string            `json:"token"`
	Decision    string            `json:"decision"`
	Reason      string            `json:"reason"`
	Fingerprint string            `json:"fingerprint"`
	Previous    string            `json:"previous,omitempty"`
	Panels      int               `json:"panels,omitempty"`
	Changed     []ChangedCellView `json:"changed,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass",
		Long: `Run exactly one reconciliation pass over the session data, synchronously.

The pass fingerprints the stored data, decides build or patch against the
surface's persisted fingerprint, renders or patches, and persists the new
fingerprint. A pass never fails: store and history problems degrade
locally and are logged on stderr.

A one-shot invocation starts with nothing rendered, so it always builds;
patch passes happen inside a live watch loop or an embedding host. Use
the fingerprint command to preview what a live process would decide.

Examples:
  paneldiff reconcile --db ./panels.db
  paneldiff reconcile --db ./panels.db --config ./panels.yaml --force
  paneldiff reconcile --db ./panels.db --session chat-7 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "panel configuration file (default: stock panels)")
	cmd.Flags().StringVar(&opts.Session, "session", DefaultSession, "session whose data to reconcile")
	cmd.Flags().StringVar(&opts.Surface, "surface", DefaultSurface, "surface whose state to reconcile")
	cmd.Flags().StringVar(&opts.RedisURL, "redis", "", "redis URL for surface state (default: the SQLite store)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "force a rebuild regardless of the fingerprint")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
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
		return WrapExitError(ExitCommandError, "failed to open surface state", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	ctrl := newController(schema, st, surfaces, opts.Surface, log)
	if opts.Force {
		ctrl.ForceRebuild()
	}

	snap, err := st.GetSessionSnapshot(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load session snapshot", err)
	}

	out := ctrl.Reconcile(ctx, snap)
	result := reconcileResult(out)

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputReconcileText(formatter, result)
}

// reconcileResult converts a pass outcome into the command's output shape.
func reconcileResult(out reconcile.Outcome) ReconcileResult {
	result := ReconcileResult{
		Token:       out.Token,
		Decision:    out.Decision.String(),
		Reason:      out.Reason,
		Fingerprint: string(out.Fingerprint),
		Previous:    out.Previous,
		Panels:      out.Panels,
	}
	for _, c := range out.Changed {
		result.Changed = append(result.Changed, ChangedCellView{
			Panel:  c.PanelID,
			Row:    c.RowIndex,
			Entity: c.EntityID,
			Field:  c.Field,
			Key:    c.Key,
			Old:    c.Old,
			New:    c.New,
		})
	}
	return result
}

func outputReconcileText(formatter *OutputFormatter, result ReconcileResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Pass %s: %s (%s)\n", result.Token, result.Decision, result.Reason)
	fmt.Fprintf(w, "  Fingerprint: %s\n", result.Fingerprint)
	if result.Decision == "build" {
		fmt.Fprintf(w, "  Panels rendered: %d\n", result.Panels)
		return nil
	}

	fmt.Fprintf(w, "  Changed cells: %d\n", len(result.Changed))
	for _, c := range result.Changed {
		fmt.Fprintf(w, "    %s[%d].%s: %q -> %q\n", c.Panel, c.Row, c.Field, c.Old, c.New)
	}
	return nil
}
