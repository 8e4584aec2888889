package schema

import (
	"fmt"

	"github.com/roach88/tracked/internal/model"
)

// Build validates doc against env's registry and defines every type in env,
// parents before children. Returns ValidationErrors when doc is invalid, in
// which case nothing is defined.
func Build(env *model.Env, doc *Document) ([]*model.Type, error) {
	if errs := Validate(doc, env.Registry()); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	types := make([]*model.Type, len(doc.Types))
	for _, i := range definitionOrder(doc) {
		t, err := env.Define(doc.Types[i].TypeDef())
		if err != nil {
			return nil, fmt.Errorf("define %s: %w", doc.Types[i].Name, err)
		}
		types[i] = t
	}
	env.Logger().Debug("schema built", "source", doc.Source, "types", len(types))
	return types, nil
}

// LoadEnv loads the schema at path and builds it into a new Env.
func LoadEnv(path string, opts ...model.EnvOption) (*model.Env, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	env := model.NewEnv(opts...)
	if _, err := Build(env, doc); err != nil {
		return nil, err
	}
	return env, nil
}
