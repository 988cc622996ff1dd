package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paneldiff/paneldiff/internal/fingerprint"
	"github.com/paneldiff/paneldiff/internal/store"
)

// FingerprintOptions holds flags for the fingerprint command.
type FingerprintOptions struct {
	*RootOptions
	Database string
	Config   string
	Session  string
	Surface  string
	RedisURL string
}

// FingerprintResult holds the computed-versus-stored comparison.
type FingerprintResult struct {
	Computed string `json:"computed"`
	Stored   string `json:"stored,omitempty"`
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FingerprintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Compute the structural fingerprint and compare it with the stored one",
		Long: `Compute the structural fingerprint of the current session data and
compare it against the fingerprint persisted for the surface.

The printed decision is what the next reconciliation pass would choose
based on the persisted state alone: build when no fingerprint is stored
or the stored one differs, patch when they match. (A live process that
has not rendered yet builds regardless.)

Examples:
  paneldiff fingerprint --db ./panels.db
  paneldiff fingerprint --db ./panels.db --config ./panels.yaml --session chat-7
  paneldiff fingerprint --db ./panels.db --redis redis://localhost:6379/0`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFingerprint(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "panel configuration file (default: stock panels)")
	cmd.Flags().StringVar(&opts.Session, "session", DefaultSession, "session whose data to fingerprint")
	cmd.Flags().StringVar(&opts.Surface, "surface", DefaultSurface, "surface whose stored fingerprint to compare")
	cmd.Flags().StringVar(&opts.RedisURL, "redis", "", "redis URL for surface state (default: the SQLite store)")

	return cmd
}

func runFingerprint(opts *FingerprintOptions, cmd *cobra.Command) error {
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

	snap, err := st.GetSessionSnapshot(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load session snapshot", err)
	}
	formatter.VerboseLog("Session %s: %d panel(s) with data", opts.Session, len(snap.Rows))

	computed := fingerprint.Compute(fingerprint.DescribeSnapshot(schema, snap))
	stored, err := surfaces.LoadFingerprint(ctx, opts.Surface)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read stored fingerprint", err)
	}

	decision, reason := compareFingerprints(string(computed), stored)
	result := FingerprintResult{
		Computed: string(computed),
		Stored:   stored,
		Decision: decision,
		Reason:   reason,
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputFingerprintText(formatter, result)
}

// compareFingerprints is the persisted-state half of the build-or-patch
// decision.
func compareFingerprints(computed, stored string) (decision, reason string) {
	switch {
	case stored == "":
		return "build", "no persisted fingerprint"
	case stored != computed:
		return "build", "fingerprint changed"
	default:
		return "patch", "fingerprint unchanged"
	}
}

func outputFingerprintText(formatter *OutputFormatter, result FingerprintResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Computed: %s\n", result.Computed)
	if result.Stored == "" {
		fmt.Fprintln(w, "Stored:   (none)")
	} else {
		fmt.Fprintf(w, "Stored:   %s\n", result.Stored)
	}
	fmt.Fprintf(w, "Decision: %s (%s)\n", result.Decision, result.Reason)
	return nil
}
