package attr

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// TagAny is the untyped passthrough tag used when a Config omits Type.
const TagAny = "any"

// ErrEmptyName is returned when a Config has no Name.
var ErrEmptyName = errors.New("attr: empty attribute name")

// Type is one attribute type variant. Implementations are stateless; all
// per-attribute data lives on the Descriptor.
type Type interface {
	// Tag returns the registry tag.
	Tag() string

	// Zero returns the value an attribute holds when no default is declared.
	Zero(d *Descriptor) any

	// BeforeSet normalizes an incoming value (coercion, or rejection to nil).
	BeforeSet(d *Descriptor, o Owner, v any) (any, error)

	// AfterSet post-processes a value that is about to be stored. It may
	// reject the value, in which case nothing is stored.
	AfterSet(d *Descriptor, o Owner, value, previous any) error

	// Equal reports value equality for no-op detection.
	Equal(a, b any) bool

	// Raw returns the transmission form of a stored value.
	Raw(v any) any
}

// Initializer is implemented by types whose initial value depends on the
// owner, such as nested collections that must be bound to the owner's
// environment. It is consulted only when the descriptor yields no default.
type Initializer interface {
	Initial(d *Descriptor, o Owner) (any, error)
}

// Factory builds the Type registered under a tag.
type Factory func() Type

// Registry maps type tags to Type factories. Registration is append-only.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry pre-loaded with the scalar and container
// types: any, string, integer, number, boolean, date, array, object.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for _, f := range builtinFactories() {
		t := f()
		r.factories[t.Tag()] = f
	}
	return r
}

// Register associates tag with f. Tags are case-insensitive. Registering a
// tag twice fails with a DUPLICATE_TYPE error.
func (r *Registry) Register(tag string, f Factory) error {
	key := normalizeTag(tag)
	if key == "" {
		return fmt.Errorf("attr: empty type tag")
	}
	if f == nil {
		return fmt.Errorf("attr: nil factory for type %q", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return NewDuplicateTypeError(key)
	}
	r.factories[key] = f
	return nil
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[normalizeTag(tag)]
	return ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Create resolves cfg into a Descriptor.
//
// Transform slots are resolved here once: a GetExpr is compiled into a
// Getter, and absent hooks stay nil so callers never re-probe them.
func (r *Registry) Create(cfg Config) (*Descriptor, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, ErrEmptyName
	}

	tag := normalizeTag(cfg.Type)
	if tag == "" {
		tag = TagAny
	}

	r.mu.RLock()
	f, ok := r.factories[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, NewUnknownTypeError(tag)
	}

	d := &Descriptor{
		name:     name,
		tag:      tag,
		typ:      f(),
		def:      cfg.Default,
		defFunc:  cfg.DefaultFunc,
		persist:  !cfg.Transient,
		useNull:  cfg.UseNull,
		embedded: cfg.Embedded,
		of:       cfg.Of,
		getExpr:  strings.TrimSpace(cfg.GetExpr),
		get:      cfg.Get,
		set:      cfg.Set,
		raw:      cfg.Raw,
		equal:    cfg.Equal,
	}

	if d.get == nil && d.getExpr != "" {
		get, err := compileGetter(d.getExpr)
		if err != nil {
			return nil, fmt.Errorf("attr %q: %w", name, err)
		}
		d.get = get
	}

	return d, nil
}

// compileGetter compiles a read expression once. At read time the owner's
// stored values are the environment and "value" is the attribute's own value.
func compileGetter(src string) (Getter, error) {
	program, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile get expression: %w", err)
	}
	return func(o Owner, stored any) any {
		return runGetter(program, src, o, stored)
	}, nil
}

// runGetter evaluates a read expression. A runtime failure reads as nil and
// is reported through the owner's logger when it has one.
func runGetter(program *vm.Program, src string, o Owner, stored any) any {
	env := o.Snapshot()
	env["value"] = stored
	out, err := expr.Run(program, env)
	if err != nil {
		if l, ok := o.(Logged); ok {
			l.Logger().Warn("get expression failed",
				"type", o.TypeName(),
				"expr", src,
				"error", err,
			)
		}
		return nil
	}
	return out
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
