package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paneldiff/paneldiff/internal/config"
)

// errCodeGeneric reports command-level problems that are not rule
// violations, like an unreadable file. errCodeSchema reports a document the
// embedded CUE schema rejected; the semantic rules behind E101+ never ran.
const (
	errCodeGeneric = "E001"
	errCodeSchema  = "E100"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a panel configuration file",
		Long: `Validate a panel configuration file without touching any data.

Checks the YAML against the embedded CUE schema (types, enums, unknown
fields, with source positions), then runs the semantic rules: panel id
uniqueness, field name uniqueness, alias disjointness, and that every
enabled panel has something to render. All rule violations are collected
and reported together.

Exit codes:
  0 - Configuration valid
  1 - Validation failed
  2 - Command error (file not readable)

Examples:
  paneldiff validate ./panels.yaml
  paneldiff validate ./panels.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, configPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	doc, err := config.Load(configPath)
	if err != nil {
		// An unreadable file is a command error; a file the schema rejects
		// is a validation failure like any other.
		if _, statErr := os.Stat(configPath); statErr != nil {
			_ = formatter.Error(errCodeGeneric, fmt.Sprintf("config not found: %s", configPath), nil)
			return WrapExitError(ExitCommandError, "config not found", statErr)
		}

		var schemaErr *config.SchemaError
		if errors.As(err, &schemaErr) {
			return outputSchemaError(formatter, schemaErr)
		}
		_ = formatter.Error(errCodeSchema, err.Error(), nil)
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	formatter.VerboseLog("Loaded %d panel(s) from %s", len(doc.Panels), configPath)

	if errs := config.Validate(doc); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	return outputValidateSuccess(formatter, doc)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, doc *config.Document) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}

	fmt.Fprintf(formatter.Writer, "✓ Configuration valid (%d panels)\n", len(doc.Panels))
	return nil
}

// outputSchemaError outputs a CUE schema rejection, with its source
// position when one is attached.
func outputSchemaError(formatter *OutputFormatter, schemaErr *config.SchemaError) error {
	if formatter.Format == "json" {
		_ = formatter.Error(errCodeSchema, schemaErr.Error(), nil)
		return NewExitError(ExitFailure, "validation failed with 1 error(s)")
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	fmt.Fprintf(formatter.Writer, "  [%s] %s\n", errCodeSchema, schemaErr.Error())
	return NewExitError(ExitFailure, "validation failed with 1 error(s)")
}

// outputValidationErrors outputs the collected semantic rule violations.
func outputValidationErrors(formatter *OutputFormatter, errs []config.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
	}
	fmt.Fprintln(formatter.Writer)

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
