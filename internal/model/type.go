package model

import (
	"fmt"
	"strings"

	"github.com/roach88/tracked/internal/attr"
)

// DefaultIDAttribute is the id attribute name when a type declares none.
const DefaultIDAttribute = "id"

// TypeDef declares an entity type.
type TypeDef struct {
	// Name is unique per Env.
	Name string

	// Extends names a previously defined parent type. Parent takes precedence.
	Extends string
	Parent  *Type

	// IDAttribute names the id attribute. Empty inherits from the parent, or
	// falls back to "id". A type whose id attribute is not declared cannot
	// be identified, saved or destroyed.
	IDAttribute string

	// Resource is the remote collection name. Empty means the lowercased Name.
	Resource string

	// Attributes are merged onto the parent's: a redeclared name replaces the
	// parent's descriptor in place, new names are appended.
	Attributes []attr.Config

	// Initialize runs once per newly constructed instance, after its initial
	// data has been applied and committed. Inherited when nil.
	Initialize func(*Entity)

	// Provider overrides the Env's default provider for this type.
	Provider Provider
}

// Type is a resolved entity type. Types are immutable after definition.
type Type struct {
	env      *Env
	id       uint64
	name     string
	parent   *Type
	idAttr   string
	resource string

	attrs map[string]*attr.Descriptor
	order []string

	// plain and deferred partition order: attributes without and with a
	// custom setter. Map assignments apply plain first.
	plain    []string
	deferred []string

	initialize func(*Entity)
	provider   Provider
}

func newType(env *Env, def TypeDef, parent *Type) (*Type, error) {
	t := &Type{
		env:        env,
		name:       def.Name,
		parent:     parent,
		idAttr:     def.IDAttribute,
		resource:   def.Resource,
		attrs:      make(map[string]*attr.Descriptor),
		initialize: def.Initialize,
		provider:   def.Provider,
	}

	if parent != nil {
		for _, name := range parent.order {
			t.attrs[name] = parent.attrs[name]
		}
		t.order = append(t.order, parent.order...)
		if t.idAttr == "" {
			t.idAttr = parent.idAttr
		}
		if t.initialize == nil {
			t.initialize = parent.initialize
		}
		if t.provider == nil {
			t.provider = parent.provider
		}
	}
	if t.idAttr == "" {
		t.idAttr = DefaultIDAttribute
	}
	if t.resource == "" {
		t.resource = strings.ToLower(def.Name)
	}

	seen := make(map[string]bool, len(def.Attributes))
	for _, cfg := range def.Attributes {
		if cfg.Name == t.idAttr {
			// Ids are absent until assigned, whatever the attribute type.
			cfg.UseNull = true
		}
		d, err := env.registry.Create(cfg)
		if err != nil {
			return nil, err
		}
		if seen[d.Name()] {
			return nil, fmt.Errorf("attribute %q declared twice", d.Name())
		}
		seen[d.Name()] = true

		if _, inherited := t.attrs[d.Name()]; !inherited {
			t.order = append(t.order, d.Name())
		}
		t.attrs[d.Name()] = d
	}

	for _, name := range t.order {
		if t.attrs[name].HasSetter() {
			t.deferred = append(t.deferred, name)
		} else {
			t.plain = append(t.plain, name)
		}
	}
	return t, nil
}

// Name returns the type name.
func (t *Type) Name() string { return t.name }

// Parent returns the type this one extends, or nil.
func (t *Type) Parent() *Type { return t.parent }

// IDAttribute returns the name of the id attribute.
func (t *Type) IDAttribute() string { return t.idAttr }

// Resource returns the remote collection name.
func (t *Type) Resource() string { return t.resource }

// Env returns the environment the type is defined in.
func (t *Type) Env() *Env { return t.env }

// Identifiable reports whether the id attribute is declared.
func (t *Type) Identifiable() bool {
	_, ok := t.attrs[t.idAttr]
	return ok
}

// Attribute returns the descriptor for name.
func (t *Type) Attribute(name string) (*attr.Descriptor, bool) {
	d, ok := t.attrs[name]
	return d, ok
}

// Attributes returns the descriptors in declaration order, parents first.
func (t *Type) Attributes() []*attr.Descriptor {
	out := make([]*attr.Descriptor, len(t.order))
	for i, name := range t.order {
		out[i] = t.attrs[name]
	}
	return out
}

// AttributeNames returns attribute names in declaration order.
func (t *Type) AttributeNames() []string {
	return append([]string(nil), t.order...)
}

// Is reports whether t is other or extends it.
func (t *Type) Is(other *Type) bool {
	for cur := t; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

func (t *Type) persistence() (Provider, error) {
	if t.provider != nil {
		return t.provider, nil
	}
	if t.env.provider != nil {
		return t.env.provider, nil
	}
	return nil, fmt.Errorf("%s: %w", t.name, ErrNoProvider)
}

func (t *Type) missingID() error {
	return attr.NewMissingIDAttributeError(t.name, t.idAttr)
}

// known returns the subset of rec whose keys are attributes of t.
func (t *Type) known(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if _, ok := t.attrs[k]; ok {
			out[k] = v
		}
	}
	return out
}

// New constructs an entity. Defaults are assigned first, then data.
//
// When data carries an id already held by a live instance of t, the data is
// merged into that instance (as ordinary, tracked changes) and the existing
// instance is returned; no second instance is created.
func (t *Type) New(data map[string]any) (*Entity, error) {
	if existing, ok := t.cached(data); ok {
		if err := existing.SetMap(data); err != nil {
			return nil, err
		}
		return existing, nil
	}

	e := newEntity(t)
	for _, name := range t.order {
		if err := e.initialize(t.attrs[name]); err != nil {
			return nil, fmt.Errorf("new %s: %s: %w", t.name, name, err)
		}
	}

	if len(data) > 0 {
		if err := e.SetWith(data, SetOptions{Silent: true}); err != nil {
			e.forget()
			return nil, fmt.Errorf("new %s: %w", t.name, err)
		}
	}
	e.Commit()

	if t.initialize != nil {
		t.initialize(e)
	}
	return e, nil
}

// coerce turns a plain map or a bare id value into an instance of t. Bare
// ids resolve through the identity map, so a reference echoed by a remote
// store maps onto the live instance.
func (t *Type) coerce(v any) (*Entity, error) {
	switch val := v.(type) {
	case *Entity:
		return val, nil
	case map[string]any:
		return t.New(val)
	}
	if !t.Identifiable() {
		return nil, t.missingID()
	}
	return t.New(map[string]any{t.idAttr: v})
}

// MustNew is like New but panics on error.
func (t *Type) MustNew(data map[string]any) *Entity {
	e, err := t.New(data)
	if err != nil {
		panic(err)
	}
	return e
}

// Get returns the live instance of t with the given id.
func (t *Type) Get(id any) (*Entity, bool) {
	return t.env.identity.Lookup(t.id, id)
}

// NewCollection creates a collection of t.
func (t *Type) NewCollection(opts ...CollectionOption) (*Collection, error) {
	return newCollection(t.env, t, opts...)
}

// cached looks up the live instance addressed by data's id, normalizing the
// raw id the same way the id attribute would.
func (t *Type) cached(data map[string]any) (*Entity, bool) {
	raw, ok := data[t.idAttr]
	if !ok || raw == nil {
		return nil, false
	}
	d, ok := t.attrs[t.idAttr]
	if !ok {
		return nil, false
	}
	id, err := d.Type().BeforeSet(d, nil, raw)
	if err != nil {
		return nil, false
	}
	return t.env.identity.Lookup(t.id, id)
}
