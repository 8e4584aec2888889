package model

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/tracked/internal/attr"
	"github.com/roach88/tracked/internal/clientid"
	"github.com/roach88/tracked/internal/identity"
)

// DefaultSyncConcurrency bounds the provider calls one Collection.Sync keeps
// in flight.
const DefaultSyncConcurrency = 8

// Client ids key collection membership and the native converter cache,
// so every Env draws from one process-wide sequence unless configured
// otherwise. Type ids are process-wide for the same reason: Envs may share
// an identity map.
var (
	processClientIDs = clientid.NewSequence("c")
	processTypeIDs   atomic.Uint64
)

// Env holds the services shared by a set of entity types: the attribute
// type registry, the identity map, the client-id generator, the default
// persistence provider and the logger.
//
// Independent Envs never share entities, which keeps tests isolated.
type Env struct {
	registry        *attr.Registry
	identity        *identity.Cache[*Entity]
	ids             clientid.Generator
	provider        Provider
	logger          *slog.Logger
	syncConcurrency int

	mu    sync.RWMutex
	types map[string]*Type
	order []*Type
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithRegistry uses r for attribute types. The "entity" and "collection"
// tags are registered into r if absent.
func WithRegistry(r *attr.Registry) EnvOption {
	return func(env *Env) {
		env.registry = r
	}
}

// WithIdentityCache shares an identity map between Envs.
func WithIdentityCache(c *identity.Cache[*Entity]) EnvOption {
	return func(env *Env) {
		env.identity = c
	}
}

// WithClientIDs sets the client-id generator. The default is a sequence
// shared by every Env in the process. A private generator restarts its
// counter per Env and is meant for reproducible output in tests; entities
// of such Envs must not be mixed in one collection.
func WithClientIDs(g clientid.Generator) EnvOption {
	return func(env *Env) {
		env.ids = g
	}
}

// WithProvider sets the default persistence provider.
func WithProvider(p Provider) EnvOption {
	return func(env *Env) {
		env.provider = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EnvOption {
	return func(env *Env) {
		env.logger = l
	}
}

// WithSyncConcurrency bounds concurrent provider calls per Collection.Sync.
// Values below 1 are ignored.
func WithSyncConcurrency(n int) EnvOption {
	return func(env *Env) {
		if n > 0 {
			env.syncConcurrency = n
		}
	}
}

// NewEnv creates an environment.
func NewEnv(opts ...EnvOption) *Env {
	env := &Env{
		syncConcurrency: DefaultSyncConcurrency,
		types:           make(map[string]*Type),
	}
	for _, opt := range opts {
		opt(env)
	}
	if env.registry == nil {
		env.registry = attr.NewRegistry()
	}
	registerNested(env.registry)
	if env.identity == nil {
		env.identity = identity.New[*Entity]()
	}
	if env.ids == nil {
		env.ids = processClientIDs
	}
	if env.logger == nil {
		env.logger = slog.Default()
	}
	return env
}

// Registry returns the attribute type registry.
func (env *Env) Registry() *attr.Registry { return env.registry }

// Identity returns the identity map.
func (env *Env) Identity() *identity.Cache[*Entity] { return env.identity }

// Provider returns the default persistence provider (may be nil).
func (env *Env) Provider() Provider { return env.provider }

// Logger returns the logger.
func (env *Env) Logger() *slog.Logger { return env.logger }

// Lookup returns the type defined under name.
func (env *Env) Lookup(name string) (*Type, bool) {
	env.mu.RLock()
	defer env.mu.RUnlock()
	t, ok := env.types[name]
	return t, ok
}

// Types returns every defined type in definition order.
func (env *Env) Types() []*Type {
	env.mu.RLock()
	defer env.mu.RUnlock()
	out := make([]*Type, len(env.order))
	copy(out, env.order)
	return out
}

// Define resolves def into a Type and registers it under def.Name.
func (env *Env) Define(def TypeDef) (*Type, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("define: empty type name")
	}

	parent := def.Parent
	if parent == nil && def.Extends != "" {
		p, ok := env.Lookup(def.Extends)
		if !ok {
			return nil, fmt.Errorf("define %s: extends %q: %w", def.Name, def.Extends, ErrUnknownEntityType)
		}
		parent = p
	}
	if parent != nil && parent.env != env {
		return nil, fmt.Errorf("define %s: parent %s belongs to another env", def.Name, parent.name)
	}

	t, err := newType(env, def, parent)
	if err != nil {
		return nil, fmt.Errorf("define %s: %w", def.Name, err)
	}

	env.mu.Lock()
	defer env.mu.Unlock()
	if _, exists := env.types[def.Name]; exists {
		return nil, fmt.Errorf("define %s: %w", def.Name, ErrDuplicateEntityType)
	}
	t.id = processTypeIDs.Add(1)
	env.types[def.Name] = t
	env.order = append(env.order, t)

	env.logger.Debug("entity type defined",
		"type", t.name,
		"resource", t.resource,
		"attributes", len(t.order),
	)
	return t, nil
}

// MustDefine is like Define but panics on error.
func (env *Env) MustDefine(def TypeDef) *Type {
	t, err := env.Define(def)
	if err != nil {
		panic(err)
	}
	return t
}

// NewCollection creates a collection of t. t may be nil when WithFactory
// supplies the coercion of plain maps; such a collection accepts entities
// of any type.
func (env *Env) NewCollection(t *Type, opts ...CollectionOption) (*Collection, error) {
	if t != nil && t.env != env {
		return nil, fmt.Errorf("new collection: type %s belongs to another env", t.name)
	}
	return newCollection(env, t, opts...)
}

func (env *Env) nextClientID() string {
	return env.ids.Generate()
}
