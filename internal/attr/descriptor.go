package attr

import (
	"log/slog"
	"maps"
)

// Owner is the entity an attribute's hooks run against. Custom setters may
// call Set on the owner; the owner batches such nested changes into the
// changeset of the outermost set.
type Owner interface {
	// TypeName returns the entity type name, used in error reports.
	TypeName() string

	// Get returns the read-transformed value of an attribute.
	Get(name string) (any, error)

	// Set assigns an attribute through the full conversion pipeline.
	Set(name string, v any) error

	// Stored returns the stored value of an attribute without transforms.
	Stored(name string) any

	// Snapshot returns a copy of all stored values keyed by attribute name.
	Snapshot() map[string]any
}

// Logged is implemented by owners that report read-time failures, such as a
// get expression that fails at run time.
type Logged interface {
	Logger() *slog.Logger
}

// Getter is a read-time transform applied by Get.
type Getter func(o Owner, stored any) any

// Setter is a custom set hook. It receives the type-normalized new value and
// the current stored value and returns the value to store.
type Setter func(o Owner, value, previous any) (any, error)

// Rawer is a transmission-time transform applied by Raw and by the raw
// native projection. It is independent of Getter.
type Rawer func(o Owner, stored any) any

// EqualFunc decides whether an assignment is a no-op.
type EqualFunc func(a, b any) bool

// Config declares one attribute of an entity type.
type Config struct {
	// Name is unique per entity type.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Type is the registry tag, matched case-insensitively. Empty means "any".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Default is a literal default. Maps and slices are deep-copied per entity.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// DefaultFunc generates a default and takes precedence over Default.
	DefaultFunc func() any `json:"-" yaml:"-"`

	// Transient excludes the attribute from persisted projections.
	Transient bool `json:"transient,omitempty" yaml:"transient,omitempty"`

	// UseNull makes unparsable or absent input yield nil instead of the zero value.
	UseNull bool `json:"use_null,omitempty" yaml:"use_null,omitempty"`

	// Embedded marks a nested entity or collection as part of the owner's
	// own change and persistence surface. Non-embedded nested values are related.
	Embedded bool `json:"embedded,omitempty" yaml:"embedded,omitempty"`

	// Of names the nested entity type for "entity" and "collection" tags.
	Of string `json:"of,omitempty" yaml:"of,omitempty"`

	// GetExpr is an expression evaluated on read, with the owner's stored
	// values in scope and the attribute's own stored value bound to "value".
	// Ignored when Get is set.
	GetExpr string `json:"get,omitempty" yaml:"get,omitempty"`

	Get   Getter    `json:"-" yaml:"-"`
	Set   Setter    `json:"-" yaml:"-"`
	Raw   Rawer     `json:"-" yaml:"-"`
	Equal EqualFunc `json:"-" yaml:"-"`
}

// Descriptor is the immutable, resolved form of a Config.
type Descriptor struct {
	name     string
	tag      string
	typ      Type
	def      any
	defFunc  func() any
	persist  bool
	useNull  bool
	embedded bool
	of       string
	getExpr  string

	get   Getter
	set   Setter
	raw   Rawer
	equal EqualFunc
}

func (d *Descriptor) Name() string   { return d.name }
func (d *Descriptor) Tag() string    { return d.tag }
func (d *Descriptor) Type() Type     { return d.typ }
func (d *Descriptor) Persist() bool  { return d.persist }
func (d *Descriptor) UseNull() bool  { return d.useNull }
func (d *Descriptor) Embedded() bool { return d.embedded }
func (d *Descriptor) Of() string     { return d.of }

// HasSetter reports whether a custom setter is defined. Map assignments
// apply attributes with setters after all others.
func (d *Descriptor) HasSetter() bool { return d.set != nil }

// HasGetter reports whether a read transform is defined.
func (d *Descriptor) HasGetter() bool { return d.get != nil }

// HasRaw reports whether a custom raw transform is defined.
func (d *Descriptor) HasRaw() bool { return d.raw != nil }

// GetExpr returns the source of the declarative read transform, if any.
func (d *Descriptor) GetExpr() string { return d.getExpr }

// Default returns a fresh default value for a new entity.
func (d *Descriptor) Default() any {
	if d.defFunc != nil {
		return d.defFunc()
	}
	if d.def != nil {
		return Clone(d.def)
	}
	return d.typ.Zero(d)
}

// Before runs the first two pipeline stages: type-level normalization then
// the custom setter, if any.
func (d *Descriptor) Before(o Owner, v, previous any) (any, error) {
	nv, err := d.typ.BeforeSet(d, o, v)
	if err != nil {
		return nil, err
	}
	if d.set != nil {
		nv, err = d.set(o, nv, previous)
		if err != nil {
			return nil, err
		}
	}
	return nv, nil
}

// After runs the type-level post-processing stage for a value that will be stored.
func (d *Descriptor) After(o Owner, value, previous any) error {
	return d.typ.AfterSet(d, o, value, previous)
}

// Equal reports whether assigning b over a is a no-op.
func (d *Descriptor) Equal(a, b any) bool {
	if d.equal != nil {
		return d.equal(a, b)
	}
	return d.typ.Equal(a, b)
}

// Read applies the read transform to a stored value.
func (d *Descriptor) Read(o Owner, stored any) any {
	if d.get == nil {
		return stored
	}
	return d.get(o, stored)
}

// RawValue applies the raw transform to a stored value, falling back to the
// type's own raw form.
func (d *Descriptor) RawValue(o Owner, stored any) any {
	if d.raw != nil {
		return d.raw(o, stored)
	}
	return d.typ.Raw(stored)
}

// Clone deep-copies plain maps and slices so literal defaults are never
// shared between entities. Other values are returned as is.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case map[string]string:
		return maps.Clone(val)
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
