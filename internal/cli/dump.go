package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tracked/internal/canon"
	"github.com/roach88/tracked/internal/model"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Store StoreOptions
	Raw   bool
}

// TypeDump holds the fetched records of one type.
type TypeDump struct {
	Type    string `json:"type"`
	Records []any  `json:"records"`
}

// DumpResult lists fetched records per type.
type DumpResult struct {
	Types []TypeDump `json:"types"`
}

// RenderText implements TextRenderer. Each record is printed as one line
// of canonical JSON, prefixed with its type.
func (r DumpResult) RenderText(w io.Writer) error {
	for _, t := range r.Types {
		for _, rec := range t.Records {
			data, err := canon.Marshal(rec)
			if err != nil {
				return fmt.Errorf("%s: %w", t.Type, err)
			}
			if _, err := fmt.Fprintf(w, "%s %s\n", t.Type, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump [type...]",
		Short: "Fetch and print stored records",
		Long: `Fetch every record of the given types (all types by default) through
the entity model and print its native projection.

Related entities are expanded when they were fetched in the same run;
with --raw they are printed as ids, exactly as stored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args, cmd)
		},
	}

	opts.Store.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print stored values (related entities as ids)")
	return cmd
}

func runDump(opts *DumpOptions, names []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	sess, err := openSession(opts.RootOptions, opts.Store, formatter, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	types, err := selectTypes(sess.env, names)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUnknownType, err.Error(), nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Fetch everything before projecting so references between types
	// resolve to fully loaded instances.
	fetched := make([]*model.Collection, 0, len(types))
	for _, t := range types {
		c, err := t.NewCollection()
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeFetchFailed, fmt.Sprintf("failed to fetch %s", t.Name()), err)
		}
		if err := c.Fetch(ctx); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeFetchFailed, fmt.Sprintf("failed to fetch %s", t.Name()), err)
		}
		formatter.VerboseLog("%s: %d record(s)", t.Name(), c.Len())
		fetched = append(fetched, c)
	}

	native := model.NativeOptions{Raw: opts.Raw, PersistedOnly: opts.Raw}
	result := DumpResult{Types: make([]TypeDump, 0, len(fetched))}
	for _, c := range fetched {
		records := c.ToNative(native)
		if records == nil {
			records = []any{}
		}
		result.Types = append(result.Types, TypeDump{Type: c.TypeName(), Records: records})
	}
	return formatter.Success(result)
}
