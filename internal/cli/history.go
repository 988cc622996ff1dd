package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/paneldiff/paneldiff/internal/history"
	"github.com/paneldiff/paneldiff/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// HistoryRecordView is one change record in command output.
type HistoryRecordView struct {
	At     time.Time `json:"at"`
	Origin string    `json:"origin"`
	Old    string    `json:"old"`
	New    string    `json:"new"`
	Note   string    `json:"note,omitempty"`
}

// HistoryResult holds the change records for one composite key.
type HistoryResult struct {
	Key     string              `json:"key"`
	Records []HistoryRecordView `json:"records"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <composite-key>",
		Short: "Show the change history of one cell",
		Long: `Show the append-only change history recorded for one composite key,
oldest first.

Composite keys are "<panelId>:<field>" for single-row panels and
"entity:<entityId>:<field>" for multi-row panels.

Examples:
  paneldiff history character:姓名 --db ./panels.db
  paneldiff history entity:sword:数量 --db ./panels.db --limit 5
  paneldiff history character:姓名 --db ./panels.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the last N records (0 = all)")

	return cmd
}

func runHistory(opts *HistoryOptions, compositeKey string, cmd *cobra.Command) error {
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

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.ReadHistory(ctx, compositeKey)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[len(records)-opts.Limit:]
	}

	result := HistoryResult{Key: compositeKey, Records: historyViews(records)}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputHistoryText(formatter, result)
}

func historyViews(records []history.Record) []HistoryRecordView {
	views := make([]HistoryRecordView, 0, len(records))
	for _, r := range records {
		views = append(views, HistoryRecordView{
			At:     r.At,
			Origin: string(r.Origin),
			Old:    r.OldValue,
			New:    r.NewValue,
			Note:   r.Note,
		})
	}
	return views
}

func outputHistoryText(formatter *OutputFormatter, result HistoryResult) error {
	w := formatter.Writer

	if len(result.Records) == 0 {
		fmt.Fprintf(w, "No history for key: %s\n", result.Key)
		return nil
	}

	fmt.Fprintf(w, "History for %s (%d records)\n", result.Key, len(result.Records))
	for _, r := range result.Records {
		fmt.Fprintf(w, "  [%s] %s: %q -> %q", r.At.Format(time.RFC3339), r.Origin, r.Old, r.New)
		if r.Note != "" {
			fmt.Fprintf(w, " (%s)", r.Note)
		}
		fmt.Fprintln(w)
	}
	return nil
}
