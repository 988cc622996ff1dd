package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paneldiff/paneldiff/internal/config"
	"github.com/paneldiff/paneldiff/internal/history"
	"github.com/paneldiff/paneldiff/internal/panel"
	"github.com/paneldiff/paneldiff/internal/store"
)

// FieldOptions holds flags for the field subcommands.
type FieldOptions struct {
	*RootOptions
	Database string
	Config   string
	Session  string
	Surface  string
}

// KeyMoveView is one storage-key rename in command output.
type KeyMoveView struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FieldDeleteResult holds everything a field deletion touched.
type FieldDeleteResult struct {
	Panel     string        `json:"panel"`
	Field     string        `json:"field"`
	Key       string        `json:"key,omitempty"` // storage key the field held, if numbered
	Moves     []KeyMoveView `json:"moves,omitempty"`
	Journaled int           `json:"journaled"`
	Config    string        `json:"config"`
	Decision  string        `json:"decision"`
	Reason    string        `json:"reason"`
}

// NewFieldCommand creates the field command group.
func NewFieldCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Manage panel fields",
	}
	cmd.AddCommand(newFieldDeleteCommand(rootOpts))
	return cmd
}

func newFieldDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FieldOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <panel> <field>",
		Short: "Delete a field and renumber the panel",
		Long: `Delete a field from a panel end to end: the field is removed from the
configuration file, its stored column data is dropped (journaled first as
system-origin history), the remaining fields renumber into dense storage
positions with their data moved along, and one reconciliation pass runs.
The header change flips the structural fingerprint, so that pass rebuilds.

Examples:
  paneldiff field delete character 年龄 --db ./panels.db --config ./panels.yaml
  paneldiff field delete inventory 数量 --db ./panels.db --config ./panels.yaml --session chat-7`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFieldDelete(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "panel configuration file to rewrite (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Session, "session", DefaultSession, "session whose stored data to migrate")
	cmd.Flags().StringVar(&opts.Surface, "surface", DefaultSurface, "surface to reconcile afterwards")

	return cmd
}

func runFieldDelete(opts *FieldOptions, panelID, fieldName string, cmd *cobra.Command) error {
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

	doc, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load panel configuration", err)
	}

	defIdx, fieldIdx, err := findConfigField(doc, panelID, fieldName)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot delete field", err)
	}

	schema, err := doc.Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build schema", err)
	}
	p, _ := schema.Panel(panelID)
	f, _ := schema.FieldByName(panelID, fieldName)
	oldKey, hadKey := f.StorageKey()
	oldPos := f.Pos

	// The config change first: deleting must not leave the file invalid.
	def := &doc.Panels[defIdx]
	def.Fields = append(def.Fields[:fieldIdx], def.Fields[fieldIdx+1:]...)
	if errs := config.Validate(doc); len(errs) > 0 {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("deleting %q would leave the config invalid: %v", fieldName, errs[0]))
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode config", err)
	}
	if err := os.WriteFile(opts.Config, data, 0644); err != nil {
		return WrapExitError(ExitCommandError, "failed to rewrite config", err)
	}

	// Then the runtime schema and the stored data.
	if err := schema.RemoveField(f.ID); err != nil {
		return WrapExitError(ExitCommandError, "failed to remove field", err)
	}
	moves, err := schema.Renumber(panelID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to renumber panel", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	journaled := 0
	if hadKey {
		rows, err := st.GetPanelRows(ctx, opts.Session, panelID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read panel rows", err)
		}
		hist := history.NewLog(st, history.WithLogger(log))
		journaled = journalDroppedColumn(ctx, hist, p, rows, oldPos, fieldName)

		if err := st.DeleteKeys(ctx, opts.Session, panelID, panel.PositionKeyVariants(oldPos)...); err != nil {
			return WrapExitError(ExitCommandError, "failed to drop column data", err)
		}
	}
	if len(moves) > 0 {
		if err := st.ApplyKeyRemap(ctx, opts.Session, panelID, moves); err != nil {
			return WrapExitError(ExitCommandError, "failed to move renumbered data", err)
		}
	}

	ctrl := newController(schema, st, st, opts.Surface, log)
	snap, err := st.GetSessionSnapshot(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load session snapshot", err)
	}
	out := ctrl.Reconcile(ctx, snap)

	result := FieldDeleteResult{
		Panel:     panelID,
		Field:     fieldName,
		Key:       oldKey,
		Journaled: journaled,
		Config:    opts.Config,
		Decision:  out.Decision.String(),
		Reason:    out.Reason,
	}
	for _, m := range moves {
		result.Moves = append(result.Moves, KeyMoveView{From: m.Old, To: m.New})
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputFieldDeleteText(formatter, result)
}

// findConfigField locates a field definition by panel id and display name.
func findConfigField(doc *config.Document, panelID, fieldName string) (defIdx, fieldIdx int, err error) {
	for i, def := range doc.Panels {
		if def.ID != panelID {
			continue
		}
		for j, fd := range def.Fields {
			if fd.Name == fieldName {
				return i, j, nil
			}
		}
		return 0, 0, fmt.Errorf("panel %q has no field %q", panelID, fieldName)
	}
	return 0, 0, fmt.Errorf("unknown panel %q", panelID)
}

// journalDroppedColumn appends one system-origin record per row that held a
// value in the deleted column, so the data is auditable after it is gone.
func journalDroppedColumn(
	ctx context.Context,
	hist *history.Log,
	p *panel.Panel,
	rows []panel.Row,
	pos int,
	fieldName string,
) int {
	journaled := 0
	for i, row := range rows {
		for _, k := range panel.PositionKeyVariants(pos) {
			v, ok := row[k]
			if !ok || v == "" {
				continue
			}
			key := cellHistoryKey(p, rows, i, fieldName)
			hist.Append(ctx, key, v, "", history.OriginSystem, "field deleted")
			journaled++
			break
		}
	}
	return journaled
}

func outputFieldDeleteText(formatter *OutputFormatter, result FieldDeleteResult) error {
	w := formatter.Writer

	if result.Key != "" {
		fmt.Fprintf(w, "Deleted field %s from panel %s (was %s)\n", result.Field, result.Panel, result.Key)
	} else {
		fmt.Fprintf(w, "Deleted field %s from panel %s\n", result.Field, result.Panel)
	}
	fmt.Fprintf(w, "Updated config: %s\n", result.Config)
	if len(result.Moves) > 0 {
		fmt.Fprintf(w, "Renumbered %d storage key(s)\n", len(result.Moves))
		for _, m := range result.Moves {
			formatter.VerboseLog("  %s -> %s", m.From, m.To)
		}
	}
	if result.Journaled > 0 {
		fmt.Fprintf(w, "Journaled %d history record(s)\n", result.Journaled)
	}
	fmt.Fprintf(w, "Reconciled: %s (%s)\n", result.Decision, result.Reason)
	return nil
}
