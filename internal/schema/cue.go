package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// LoadCUE loads a CUE schema from a single .cue file or from the package in
// a directory.
func LoadCUE(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error(), File: path}
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), File: path}
		}
		return ParseCUE(data, path)
	}

	files, err := FindFiles(path, ".cue")
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("scan directory: %v", err), File: path}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no CUE files found", File: path}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded", File: path}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err), File: path}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Validate(); err != nil {
		return nil, cueLoadError(err, path)
	}
	return decodeCUE(value, path)
}

// ParseCUE compiles CUE source into a Document.
func ParseCUE(data []byte, filename string) (*Document, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Validate(); err != nil {
		return nil, cueLoadError(err, filename)
	}
	return decodeCUE(value, filename)
}

func decodeCUE(value cue.Value, source string) (*Document, error) {
	doc := &Document{Source: source}

	entities := value.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: `no "entity" definitions found`, File: source}
	}
	iter, err := entities.Fields()
	if err != nil {
		return nil, cueLoadError(err, source)
	}
	for iter.Next() {
		spec, err := decodeCUEType(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, cueLoadError(err, source)
		}
		doc.Types = append(doc.Types, spec)
	}
	return doc, nil
}

func decodeCUEType(name string, v cue.Value) (TypeSpec, error) {
	spec := TypeSpec{Name: name, Line: v.Pos().Line()}

	fields, err := v.Fields()
	if err != nil {
		return spec, err
	}
	for fields.Next() {
		label := fields.Selector().Unquoted()
		fv := fields.Value()
		switch label {
		case "extends":
			spec.Extends, err = fv.String()
		case "id_attribute":
			spec.IDAttribute, err = fv.String()
		case "resource":
			spec.Resource, err = fv.String()
		case "attributes":
			spec.Attributes, err = decodeCUEAttributes(fv)
		default:
			return spec, fmt.Errorf("entity.%s: unknown field %q", name, label)
		}
		if err != nil {
			return spec, err
		}
	}
	return spec, nil
}

func decodeCUEAttributes(v cue.Value) ([]AttributeSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	var attrs []AttributeSpec
	for iter.Next() {
		a := AttributeSpec{Name: iter.Selector().Unquoted(), Line: iter.Value().Pos().Line()}
		fields, err := iter.Value().Fields()
		if err != nil {
			return nil, err
		}
		for fields.Next() {
			fv := fields.Value()
			switch label := fields.Selector().Unquoted(); label {
			case "type":
				a.Type, err = fv.String()
			case "default":
				err = fv.Decode(&a.Default)
			case "transient":
				a.Transient, err = fv.Bool()
			case "use_null":
				a.UseNull, err = fv.Bool()
			case "embedded":
				a.Embedded, err = fv.Bool()
			case "of":
				a.Of, err = fv.String()
			case "get":
				a.Get, err = fv.String()
			default:
				return nil, fmt.Errorf("attribute %s: unknown field %q", a.Name, label)
			}
			if err != nil {
				return nil, err
			}
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

// cueLoadError extracts position info from CUE errors.
func cueLoadError(err error, source string) *LoadError {
	le := &LoadError{Code: ErrCodeBuildFailed, Message: err.Error(), File: source}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return le
	}
	first := errs[0]
	le.Message = first.Error()
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.File = positions[0].Filename()
		le.Line = positions[0].Line()
	}
	return le
}

// FindFiles walks dir and returns the paths with extension ext, sorted.
func FindFiles(dir, ext string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ext {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
