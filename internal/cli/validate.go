package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tracked/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Types  int                      `json:"types"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
}

// RenderText implements TextRenderer.
func (r ValidationResult) RenderText(w io.Writer) error {
	if r.Valid {
		_, err := fmt.Fprintf(w, "✓ Schema valid (%d types)\n", r.Types)
		return err
	}
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, e := range r.Errors {
		if e.Line > 0 {
			fmt.Fprintf(w, "line %d\n", e.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema]",
		Short: "Validate an entity schema",
		Long: `Validate a YAML or CUE entity schema.

Reports every problem at once: malformed names, duplicate types and
attributes, unknown attribute types, unknown or cyclic parents, nested
attributes without a known "of" type, and get expressions that do not
compile. The schema path defaults to --schema.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	path, err := schemaPath(opts, args)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeMissingFlag, err.Error(), nil)
	}

	doc, err := schema.Load(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded %d type(s) from %s", len(doc.Types), path)

	errs := schema.Validate(doc, nil)
	if len(errs) == 0 {
		return formatter.Success(ValidationResult{Valid: true, Types: len(doc.Types)})
	}

	result := ValidationResult{Valid: false, Types: len(doc.Types), Errors: errs}
	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
	} else if err := result.RenderText(formatter.Writer); err != nil {
		return err
	}
	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// schemaPath picks the positional schema argument, falling back to --schema.
func schemaPath(opts *RootOptions, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if opts.Schema != "" {
		return opts.Schema, nil
	}
	return "", errors.New("no schema given (pass a path or --schema)")
}

// failLoad reports a schema load error under its own code.
func failLoad(formatter *OutputFormatter, err error) error {
	var le *schema.LoadError
	if errors.As(err, &le) {
		return formatter.Fail(ExitCommandError, le.Code, le.Error(), nil)
	}
	var verrs schema.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		_ = formatter.Error(verrs[0].Code, "schema is invalid", verrs)
		return WrapExitError(ExitFailure, "schema is invalid", err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load schema", err)
}
