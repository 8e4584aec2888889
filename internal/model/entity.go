package model

import (
	"log/slog"
	"maps"

	"github.com/roach88/tracked/internal/attr"
	"github.com/roach88/tracked/internal/event"
)

// Entity is a change-tracked record of a Type.
//
// Invariants:
//   - modified holds, per attribute, the value before its first change
//     since the last Commit or Rollback
//   - the client id never changes
//   - at most one live instance exists per (type, id)
type Entity struct {
	typ      *Type
	clientID string

	values   map[string]any
	modified map[string]any

	destroyed bool

	// revision counts stored-value changes; Save compares it across the
	// request to detect edits made to embedded children while in flight.
	revision uint64

	// depth counts nested Set calls; the changeset accumulates until the
	// outermost call returns.
	depth       int
	batchSilent bool
	pendingNew  map[string]any
	pendingOld  map[string]any

	children map[string]func()
	relaying bool

	events event.Emitter[Event]
}

// SetOptions controls one assignment.
type SetOptions struct {
	// Silent suppresses change events. Values are still stored and tracked.
	Silent bool
}

func newEntity(t *Type) *Entity {
	return &Entity{
		typ:      t,
		clientID: t.env.nextClientID(),
		values:   make(map[string]any, len(t.order)),
		modified: make(map[string]any),
		children: make(map[string]func()),
	}
}

// initialize assigns the default of d without tracking it as a change.
func (e *Entity) initialize(d *attr.Descriptor) error {
	v := d.Default()
	if v == nil {
		if init, ok := d.Type().(attr.Initializer); ok {
			iv, err := init.Initial(d, e)
			if err != nil {
				return err
			}
			v = iv
		}
	}
	nv, err := d.Type().BeforeSet(d, e, v)
	if err != nil {
		return err
	}
	if err := d.After(e, nv, nil); err != nil {
		return err
	}
	e.values[d.Name()] = nv
	if d.Name() == e.typ.idAttr {
		e.rekey(nil, nv)
	}
	return nil
}

// forget drops a half-constructed entity from the identity map.
func (e *Entity) forget() {
	e.typ.env.identity.Evict(e.typ.id, e.values[e.typ.idAttr], e)
	for name, unsub := range e.children {
		unsub()
		delete(e.children, name)
	}
}

// Type returns the entity type.
func (e *Entity) Type() *Type { return e.typ }

// TypeName returns the entity type name.
func (e *Entity) TypeName() string { return e.typ.name }

// Logger returns the logger of the entity's Env.
func (e *Entity) Logger() *slog.Logger { return e.typ.env.logger }

// ClientID returns the process-unique client id.
func (e *Entity) ClientID() string { return e.clientID }

// ID returns the id value, nil when unassigned. Fails when the type's id
// attribute is not declared.
func (e *Entity) ID() (any, error) {
	if !e.typ.Identifiable() {
		return nil, e.typ.missingID()
	}
	return e.values[e.typ.idAttr], nil
}

func (e *Entity) idValue() any {
	return e.values[e.typ.idAttr]
}

// IsNew reports whether the entity has no id yet.
func (e *Entity) IsNew() bool {
	return isAbsentID(e.values[e.typ.idAttr])
}

func isAbsentID(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// Destroyed reports whether the entity has been destroyed.
func (e *Entity) Destroyed() bool { return e.destroyed }

// On subscribes fn to events named name (event.All for every event) and
// returns the unsubscribe function.
func (e *Entity) On(name string, fn func(Event)) func() {
	return e.events.On(name, fn)
}

// Once subscribes fn for the next matching event only.
func (e *Entity) Once(name string, fn func(Event)) func() {
	return e.events.Once(name, fn)
}

func (e *Entity) emit(ev Event) {
	ev.Entity = e
	e.events.Emit(ev.Name, ev)
}

// Get returns the read-transformed value of name.
func (e *Entity) Get(name string) (any, error) {
	d, ok := e.typ.attrs[name]
	if !ok {
		return nil, attr.NewUnknownAttributeError(e.typ.name, name)
	}
	return d.Read(e, e.values[name]), nil
}

// Value is Get without the error, returning nil for unknown attributes.
func (e *Entity) Value(name string) any {
	v, _ := e.Get(name)
	return v
}

// Raw returns the transmission form of name. Nested entities and
// collections yield their raw native projection.
func (e *Entity) Raw(name string) (any, error) {
	d, ok := e.typ.attrs[name]
	if !ok {
		return nil, attr.NewUnknownAttributeError(e.typ.name, name)
	}
	return newConverter(NativeOptions{Raw: true}).attribute(e, d), nil
}

// Has reports whether name is an attribute with a non-nil value.
func (e *Entity) Has(name string) bool {
	_, ok := e.typ.attrs[name]
	return ok && e.values[name] != nil
}

// Stored returns the stored value of name with no transforms applied.
func (e *Entity) Stored(name string) any {
	return e.values[name]
}

// Snapshot returns a shallow copy of the stored values.
func (e *Entity) Snapshot() map[string]any {
	return maps.Clone(e.values)
}

// Set assigns one attribute.
func (e *Entity) Set(name string, v any) error {
	return e.SetWith(map[string]any{name: v}, SetOptions{})
}

// SetMap assigns several attributes as one changeset.
func (e *Entity) SetMap(values map[string]any) error {
	return e.SetWith(values, SetOptions{})
}

// SetWith assigns values. Every name is checked before anything is stored:
// an unknown name fails the whole call with no mutation.
//
// Attributes are applied in declaration order, those without a custom
// setter first, so setters observe the other new values.
func (e *Entity) SetWith(values map[string]any, opts SetOptions) error {
	for name := range values {
		if _, ok := e.typ.attrs[name]; !ok {
			return attr.NewUnknownAttributeError(e.typ.name, name)
		}
	}

	e.begin(opts.Silent)
	defer e.end()

	for _, group := range [][]string{e.typ.plain, e.typ.deferred} {
		for _, name := range group {
			v, ok := values[name]
			if !ok {
				continue
			}
			if err := e.apply(e.typ.attrs[name], v, opts.Silent); err != nil {
				return err
			}
		}
	}
	return nil
}

// apply runs the conversion pipeline for one attribute and stores the result.
func (e *Entity) apply(d *attr.Descriptor, v any, silent bool) error {
	name := d.Name()
	nv, err := d.Before(e, v, e.values[name])
	if err != nil {
		return err
	}

	// The setter may have re-entered Set for this attribute.
	prev := e.values[name]
	if d.Equal(prev, nv) {
		return nil
	}
	if name == e.typ.idAttr {
		if holder, ok := e.typ.env.identity.Lookup(e.typ.id, nv); ok && holder != e {
			return attr.NewIdentityConflictError(e.typ.name, name, nv)
		}
	}
	if err := d.After(e, nv, prev); err != nil {
		return err
	}

	if _, ok := e.modified[name]; !ok {
		e.modified[name] = prev
	}
	e.values[name] = nv
	e.revision++
	if name == e.typ.idAttr {
		e.rekey(prev, nv)
	}

	value, previous := d.Read(e, nv), d.Read(e, prev)
	e.pendingNew[name] = value
	if _, ok := e.pendingOld[name]; !ok {
		e.pendingOld[name] = previous
	}

	if !silent {
		ev := Event{Attr: name, Value: value, Previous: previous}
		ev.Name = ChangeEvent(name)
		e.emit(ev)
		ev.Name = EventChange
		e.emit(ev)
	}
	return nil
}

func (e *Entity) begin(silent bool) {
	e.depth++
	if e.depth == 1 {
		e.pendingNew = make(map[string]any)
		e.pendingOld = make(map[string]any)
		e.batchSilent = silent
	}
}

// end closes one Set level. The outermost level emits the accumulated
// changeset after the depth is back to zero, so handlers start a new batch.
func (e *Entity) end() {
	e.depth--
	if e.depth > 0 {
		return
	}
	values, previous := e.pendingNew, e.pendingOld
	e.pendingNew, e.pendingOld = nil, nil
	if e.batchSilent || len(values) == 0 {
		return
	}
	e.emit(Event{
		Name:      EventChangeset,
		Changeset: &Changeset{Values: values, Previous: previous},
	})
}

// rekey moves e's identity entry from prev to next. Set rejects taken ids,
// so a collision here can only come from Rollback restoring an id that was
// claimed in the meantime.
func (e *Entity) rekey(prev, next any) {
	cache := e.typ.env.identity
	var (
		other    *Entity
		collided bool
	)
	if isAbsentID(prev) {
		other, collided = cache.Get(e.typ.id, next, e)
		collided = collided && other != e
	} else {
		other, collided = cache.Rekey(e.typ.id, prev, next, e)
	}
	if collided {
		e.typ.env.logger.Warn("identity collision",
			"type", e.typ.name,
			"id", next,
			"client_id", e.clientID,
			"other_client_id", other.clientID,
		)
	}
}

// Original returns the value name held before its first change since the
// last Commit, and whether it has changed at all.
func (e *Entity) Original(name string) (any, bool) {
	v, ok := e.modified[name]
	return v, ok
}

// ChangedAttributes returns the directly modified attribute names in
// declaration order.
func (e *Entity) ChangedAttributes() []string {
	var out []string
	for _, name := range e.typ.order {
		if _, ok := e.modified[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// IsModified reports whether any attribute changed since the last Commit,
// including changes inside embedded children.
func (e *Entity) IsModified() bool {
	return e.isModified(false, make(map[any]bool))
}

func (e *Entity) isModified(persistedOnly bool, seen map[any]bool) bool {
	if seen[e] {
		return false
	}
	seen[e] = true

	for name := range e.modified {
		if !persistedOnly || e.typ.attrs[name].Persist() {
			return true
		}
	}
	for _, name := range e.typ.order {
		if e.embeddedModified(e.typ.attrs[name], persistedOnly, seen) {
			return true
		}
	}
	return false
}

// embeddedModified reports whether d is an embedded nested attribute whose
// current child reports modifications.
func (e *Entity) embeddedModified(d *attr.Descriptor, persistedOnly bool, seen map[any]bool) bool {
	if !d.Embedded() || (persistedOnly && !d.Persist()) {
		return false
	}
	switch child := e.values[d.Name()].(type) {
	case *Entity:
		return child.isModified(persistedOnly, seen)
	case *Collection:
		return child.isModified(ModifiedOptions{PersistedOnly: persistedOnly}, seen)
	}
	return false
}

// ChangeOptions controls Changes.
type ChangeOptions struct {
	PersistedOnly bool
	Raw           bool
}

// Changes returns the native projection restricted to modified attributes,
// including embedded children that report modifications.
func (e *Entity) Changes(opts ChangeOptions) map[string]any {
	cv := newConverter(NativeOptions{Raw: opts.Raw, PersistedOnly: opts.PersistedOnly})
	out := make(map[string]any)
	for _, name := range e.typ.order {
		d := e.typ.attrs[name]
		if opts.PersistedOnly && !d.Persist() {
			continue
		}
		_, changed := e.modified[name]
		if !changed && !e.embeddedModified(d, opts.PersistedOnly, make(map[any]bool)) {
			continue
		}
		out[name] = cv.attribute(e, d)
	}
	return out
}

// Commit marks the current state as clean, recursively through embedded
// children.
func (e *Entity) Commit() {
	e.commit(make(map[any]bool))
}

func (e *Entity) commit(seen map[any]bool) {
	if seen[e] {
		return
	}
	seen[e] = true
	clear(e.modified)
	for _, name := range e.typ.order {
		if !e.typ.attrs[name].Embedded() {
			continue
		}
		switch child := e.values[name].(type) {
		case *Entity:
			child.commit(seen)
		case *Collection:
			child.commit(seen)
		}
	}
}

// RollbackOption configures Rollback.
type RollbackOption func(*rollbackConfig)

type rollbackConfig struct {
	cascade bool
}

// Cascade extends a rollback into embedded children.
func Cascade() RollbackOption {
	return func(cfg *rollbackConfig) {
		cfg.cascade = true
	}
}

// Rollback restores every modified attribute to its original value and
// clears the modification record. Embedded children are only rolled back
// with Cascade.
func (e *Entity) Rollback(opts ...RollbackOption) {
	var cfg rollbackConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	e.rollback(cfg, make(map[any]bool))
}

func (e *Entity) rollback(cfg rollbackConfig, seen map[any]bool) {
	if seen[e] {
		return
	}
	seen[e] = true

	for name, orig := range e.modified {
		cur := e.values[name]
		if isNested(cur) || isNested(orig) {
			e.wire(name, orig)
		}
		e.values[name] = orig
		if name == e.typ.idAttr {
			e.rekey(cur, orig)
		}
	}
	if len(e.modified) > 0 {
		e.revision++
	}
	clear(e.modified)

	if cfg.cascade {
		for _, name := range e.typ.order {
			if !e.typ.attrs[name].Embedded() {
				continue
			}
			switch child := e.values[name].(type) {
			case *Entity:
				child.rollback(cfg, seen)
			case *Collection:
				child.rollback(cfg, seen)
			}
		}
	}
	e.emit(Event{Name: EventRollback})
}
