package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tracked/internal/model"
	"github.com/roach88/tracked/internal/schema"
)

// TypeInfo describes one defined entity type.
type TypeInfo struct {
	Name        string          `json:"name"`
	Parent      string          `json:"parent,omitempty"`
	Resource    string          `json:"resource"`
	IDAttribute string          `json:"id_attribute"`
	Attributes  []AttributeInfo `json:"attributes"`
}

// AttributeInfo describes one resolved attribute, including inherited ones.
type AttributeInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Of        string `json:"of,omitempty"`
	Persisted bool   `json:"persisted"`
	Nullable  bool   `json:"nullable,omitempty"`
	Embedded  bool   `json:"embedded,omitempty"`
	Computed  string `json:"get,omitempty"`
}

// InspectResult lists types in definition order.
type InspectResult struct {
	Types []TypeInfo `json:"types"`
}

// RenderText implements TextRenderer.
func (r InspectResult) RenderText(w io.Writer) error {
	for i, t := range r.Types {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header := t.Name
		if t.Parent != "" {
			header += " extends " + t.Parent
		}
		fmt.Fprintf(w, "%s (resource %q, id %q)\n", header, t.Resource, t.IDAttribute)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, a := range t.Attributes {
			typ := a.Type
			if a.Of != "" {
				typ += "<" + a.Of + ">"
			}
			var flags []string
			if !a.Persisted {
				flags = append(flags, "transient")
			}
			if a.Nullable {
				flags = append(flags, "nullable")
			}
			if a.Embedded {
				flags = append(flags, "embedded")
			}
			if a.Computed != "" {
				flags = append(flags, "get="+a.Computed)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", a.Name, typ, strings.Join(flags, " "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [schema] [type...]",
		Short: "Show resolved entity types",
		Long: `Build a schema and print every type with its resolved attributes,
including attributes inherited through extends.

With type names after the schema path, only those types are shown.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	var names []string
	if opts.Schema != "" {
		names = args
		args = nil
	} else if len(args) > 1 {
		names = args[1:]
	}
	path, err := schemaPath(opts, args)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeMissingFlag, err.Error(), nil)
	}

	env, err := schema.LoadEnv(path, model.WithLogger(newLogger(opts, cmd.ErrOrStderr())))
	if err != nil {
		return failLoad(formatter, err)
	}

	types, err := selectTypes(env, names)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUnknownType, err.Error(), nil)
	}

	result := InspectResult{Types: make([]TypeInfo, 0, len(types))}
	for _, t := range types {
		result.Types = append(result.Types, describeType(t))
	}
	return formatter.Success(result)
}

// selectTypes resolves names against env, or returns every type.
func selectTypes(env *model.Env, names []string) ([]*model.Type, error) {
	if len(names) == 0 {
		return env.Types(), nil
	}
	types := make([]*model.Type, 0, len(names))
	for _, name := range names {
		t, ok := env.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

func describeType(t *model.Type) TypeInfo {
	info := TypeInfo{
		Name:        t.Name(),
		Resource:    t.Resource(),
		IDAttribute: t.IDAttribute(),
	}
	if p := t.Parent(); p != nil {
		info.Parent = p.Name()
	}
	for _, d := range t.Attributes() {
		info.Attributes = append(info.Attributes, AttributeInfo{
			Name:      d.Name(),
			Type:      d.Tag(),
			Of:        d.Of(),
			Persisted: d.Persist(),
			Nullable:  d.UseNull(),
			Embedded:  d.Embedded(),
			Computed:  d.GetExpr(),
		})
	}
	return info
}
