package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tracked/internal/model"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Store StoreOptions
	Patch bool
}

// TypeImport counts the records written for one type.
type TypeImport struct {
	Type    string `json:"type"`
	Created int    `json:"created"`
	Saved   int    `json:"saved"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Types    []TypeImport   `json:"types"`
	Requests []RequestCount `json:"requests,omitempty"`
}

// RenderText implements TextRenderer.
func (r ImportResult) RenderText(w io.Writer) error {
	total := 0
	for _, t := range r.Types {
		total += t.Created + t.Saved
		fmt.Fprintf(w, "  %s: %d created, %d saved\n", t.Type, t.Created, t.Saved)
	}
	fmt.Fprintf(w, "✓ Imported %d record(s)\n", total)
	for _, rc := range r.Requests {
		fmt.Fprintf(w, "  %s %s %s: %d\n", rc.Resource, rc.Method, rc.Status, rc.Count)
	}
	return nil
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <records-file>",
		Short: "Load records into a store through the entity model",
		Long: `Read a YAML or JSON records file keyed by type name and write each
record through its entity type.

Records without an id are collected and created in one sync; the store
assigns their ids. Records that carry an id are saved directly and
replace any stored record with the same id (or are merged into it with
--patch). Types are processed in schema definition order.

Example records file:

  Author:
    - {id: a1, name: Ada}
  Post:
    - {title: Hello, author: a1}`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	opts.Store.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.Patch, "patch", false, "send only changed attributes when updating existing records")
	return cmd
}

func runImport(opts *ImportOptions, file string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	records, err := readRecords(file)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRecordsFile, "failed to read records file", err)
	}

	sess, err := openSession(opts.RootOptions, opts.Store, formatter, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	for _, name := range recordTypes(records) {
		if _, ok := sess.env.Lookup(name); !ok {
			return formatter.Fail(ExitCommandError, ErrCodeUnknownType, fmt.Sprintf("unknown type %q in %s", name, file), nil)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var result ImportResult
	for _, t := range sess.env.Types() {
		rows, ok := records[t.Name()]
		if !ok {
			continue
		}
		counts, err := importType(ctx, t, rows, opts.Patch)
		if err != nil {
			var invalid *invalidRecordError
			if errors.As(err, &invalid) {
				return formatter.Fail(ExitFailure, ErrCodeInvalidValue, invalid.Error(), invalid.err)
			}
			return formatter.Fail(ExitFailure, ErrCodeSyncFailed, fmt.Sprintf("failed to import %s records", t.Name()), err)
		}
		formatter.VerboseLog("%s: %d created, %d saved", t.Name(), counts.Created, counts.Saved)
		result.Types = append(result.Types, counts)
	}
	if opts.Verbose {
		result.Requests = sess.requestCounts()
	}
	return formatter.Success(result)
}

type invalidRecordError struct {
	typ   string
	index int
	err   error
}

func (e *invalidRecordError) Error() string {
	return fmt.Sprintf("%s[%d]: invalid record", e.typ, e.index)
}

func (e *invalidRecordError) Unwrap() error { return e.err }

// importType creates id-less rows through one collection sync and saves
// rows that already carry an id.
func importType(ctx context.Context, t *model.Type, rows []map[string]any, patch bool) (TypeImport, error) {
	counts := TypeImport{Type: t.Name()}

	var copts []model.CollectionOption
	if patch {
		copts = append(copts, model.WithPatch())
	}
	pending, err := t.NewCollection(copts...)
	if err != nil {
		return counts, err
	}

	for i, row := range rows {
		e, err := t.New(row)
		if err != nil {
			return counts, &invalidRecordError{typ: t.Name(), index: i, err: err}
		}
		if e.IsNew() {
			if _, err := pending.Add(e); err != nil {
				return counts, &invalidRecordError{typ: t.Name(), index: i, err: err}
			}
			continue
		}
		if err := e.Save(ctx, model.SaveOptions{Patch: patch}); err != nil {
			return counts, fmt.Errorf("save %s[%d]: %w", t.Name(), i, err)
		}
		counts.Saved++
	}

	if pending.Len() > 0 {
		if err := pending.Sync(ctx); err != nil {
			return counts, err
		}
		counts.Created = pending.Len()
	}
	return counts, nil
}

// readRecords decodes a records file. JSON is accepted as a YAML subset.
func readRecords(path string) (map[string][]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records map[string][]map[string]any
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no records", path)
	}
	return records, nil
}

// recordTypes lists the type keys of a records file in sorted order.
func recordTypes(records map[string][]map[string]any) []string {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
