package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/paneldiff/paneldiff/internal/history"
	"github.com/paneldiff/paneldiff/internal/panel"
	"github.com/paneldiff/paneldiff/internal/resolve"
	"github.com/paneldiff/paneldiff/internal/store"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Database string
	Config   string
	Session  string
	Surface  string
	Row      int
	Note     string
}

// SetResult holds the write and the pass it triggered.
type SetResult struct {
	Panel      string `json:"panel"`
	Field      string `json:"field"`
	Key        string `json:"key"`
	Row        int    `json:"row"`
	Old        string `json:"old,omitempty"`
	New        string `json:"new"`
	HistoryKey string `json:"history_key"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <panel> <field> <value>",
		Short: "Write one cell value as a user edit",
		Long: `Write one cell value the way a host UI edit would: the field reference
is resolved to its storage key through the resolution ladder, the value is
stored, a user-origin history record is appended, and one reconciliation
pass runs so the surface state catches up.

The field may be given by display name, legacy alias, or storage key
(col_2). Multi-row panels take --row to pick the row.

Examples:
  paneldiff set character 姓名 白 --db ./panels.db
  paneldiff set inventory 数量 5 --db ./panels.db --row 1
  paneldiff set character age 23 --db ./panels.db --note "corrected by hand"`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "panel configuration file (default: stock panels)")
	cmd.Flags().StringVar(&opts.Session, "session", DefaultSession, "session to write into")
	cmd.Flags().StringVar(&opts.Surface, "surface", DefaultSurface, "surface to reconcile afterwards")
	cmd.Flags().IntVar(&opts.Row, "row", 0, "row index for multi-row panels")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note to attach to the history record")

	return cmd
}

func runSet(opts *SetOptions, panelID, fieldArg, value string, cmd *cobra.Command) error {
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

	p, ok := schema.Panel(panelID)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown panel %q", panelID))
	}
	if p.Kind != panel.KindMulti && opts.Row != 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("panel %q is single-row, --row must be 0", panelID))
	}
	if opts.Row < 0 {
		return NewExitError(ExitCommandError, "--row must not be negative")
	}

	resolver := resolve.New(schema, resolve.WithLogger(log))
	key, known := resolver.WriteKey(panelID, panel.ParseRef(fieldArg))
	if !known {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("cannot resolve field %q in panel %q", fieldArg, panelID))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	rows, err := st.GetPanelRows(ctx, opts.Session, panelID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read panel rows", err)
	}
	var old string
	if opts.Row < len(rows) {
		old = rows[opts.Row][key]
	}

	if err := st.UpsertCell(ctx, opts.Session, panelID, opts.Row, key, value); err != nil {
		return WrapExitError(ExitCommandError, "failed to write cell", err)
	}

	fieldName := displayName(schema, panelID, key, fieldArg)
	historyKey := cellHistoryKey(p, rows, opts.Row, fieldName)
	hist := history.NewLog(st, history.WithLogger(log))
	hist.Append(ctx, historyKey, old, value, history.OriginUser, opts.Note)

	ctrl := newController(schema, st, st, opts.Surface, log)
	snap, err := st.GetSessionSnapshot(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load session snapshot", err)
	}
	out := ctrl.Reconcile(ctx, snap)

	result := SetResult{
		Panel:      panelID,
		Field:      fieldName,
		Key:        key,
		Row:        opts.Row,
		Old:        old,
		New:        value,
		HistoryKey: historyKey,
		Decision:   out.Decision.String(),
		Reason:     out.Reason,
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "Set %s.%s = %q (key %s, row %d", panelID, fieldName, value, key, opts.Row)
	if old != "" {
		fmt.Fprintf(formatter.Writer, ", was %q", old)
	}
	fmt.Fprintln(formatter.Writer, ")")
	fmt.Fprintf(formatter.Writer, "Reconciled: %s (%s)\n", result.Decision, result.Reason)
	return nil
}

// displayName maps a resolved storage key back to the field's display name
// for the history record. Falls back to the raw argument for keys no
// schema field owns.
func displayName(schema *panel.Schema, panelID, key, raw string) string {
	for _, f := range schema.Fields(panelID) {
		if k, ok := f.StorageKey(); ok && k == key {
			return f.Name
		}
		if f.Name == raw {
			return f.Name
		}
	}
	return raw
}

// cellHistoryKey builds the composite history key for a written cell,
// using the row's entity identity on multi-row panels with the row index
// as fallback.
func cellHistoryKey(p *panel.Panel, rows []panel.Row, rowIdx int, field string) string {
	if p.Kind != panel.KindMulti {
		return history.CellKey(p.ID, field)
	}
	entity := strconv.Itoa(rowIdx)
	if rowIdx < len(rows) {
		if id, ok := rows[rowIdx].EntityID(); ok {
			entity = id
		}
	}
	return history.EntityCellKey(entity, field)
}
