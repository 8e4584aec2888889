package model

import (
	"fmt"

	"github.com/roach88/tracked/internal/attr"
)

// Nested attribute type tags.
const (
	TagEntity     = "entity"
	TagCollection = "collection"
)

func registerNested(r *attr.Registry) {
	if !r.Has(TagEntity) {
		_ = r.Register(TagEntity, func() attr.Type { return entityType{} })
	}
	if !r.Has(TagCollection) {
		_ = r.Register(TagCollection, func() attr.Type { return collectionType{} })
	}
}

func isNested(v any) bool {
	switch v.(type) {
	case *Entity, *Collection:
		return true
	}
	return false
}

// sameRef compares nested values by identity. Plain values are never equal,
// so they reach AfterSet and are rejected there.
func sameRef(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *Entity:
		y, ok := b.(*Entity)
		return ok && x == y
	case *Collection:
		y, ok := b.(*Collection)
		return ok && x == y
	}
	return false
}

// target resolves the type named by d.Of in the owner's environment.
func target(d *attr.Descriptor, o attr.Owner) (*Type, error) {
	if d.Of() == "" {
		return nil, nil
	}
	owner, ok := o.(*Entity)
	if !ok {
		return nil, fmt.Errorf("attribute %q: nested values need an entity owner", d.Name())
	}
	t, ok := owner.typ.env.Lookup(d.Of())
	if !ok {
		return nil, fmt.Errorf("attribute %q: %q: %w", d.Name(), d.Of(), ErrUnknownEntityType)
	}
	return t, nil
}

// entityType holds a single nested entity. Plain maps are constructed
// through the target type, so the identity map applies.
type entityType struct{ attr.Base }

func (entityType) Tag() string { return TagEntity }

func (entityType) BeforeSet(d *attr.Descriptor, o attr.Owner, v any) (any, error) {
	if v == nil || isNested(v) {
		return v, nil
	}
	t, err := target(d, o)
	if err != nil || t == nil {
		return v, err
	}
	return t.coerce(v)
}

func (entityType) AfterSet(d *attr.Descriptor, o attr.Owner, value, _ any) error {
	if value == nil {
		return wireOwner(o, d.Name(), nil)
	}
	child, ok := value.(*Entity)
	if !ok {
		return attr.NewTypeMismatchError(o.TypeName(), d.Name(), "entity", value)
	}
	t, err := target(d, o)
	if err != nil {
		return err
	}
	if t != nil && !child.typ.Is(t) {
		return attr.NewTypeMismatchError(o.TypeName(), d.Name(), "entity "+t.name, child)
	}
	return wireOwner(o, d.Name(), child)
}

func (entityType) Equal(a, b any) bool { return sameRef(a, b) }

// collectionType holds a nested collection. Slices of maps or entities are
// wrapped in a fresh collection of the target type.
type collectionType struct{ attr.Base }

func (collectionType) Tag() string { return TagCollection }

func (collectionType) Initial(d *attr.Descriptor, o attr.Owner) (any, error) {
	t, err := target(d, o)
	if err != nil || t == nil {
		return nil, err
	}
	return t.NewCollection()
}

func (collectionType) BeforeSet(d *attr.Descriptor, o attr.Owner, v any) (any, error) {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []map[string]any:
		items = make([]any, len(val))
		for i, m := range val {
			items[i] = m
		}
	case []*Entity:
		items = make([]any, len(val))
		for i, m := range val {
			items[i] = m
		}
	default:
		return v, nil
	}
	t, err := target(d, o)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, attr.NewTypeMismatchError(o.TypeName(), d.Name(), "collection", v)
	}
	return t.NewCollection(WithModels(items...))
}

func (collectionType) AfterSet(d *attr.Descriptor, o attr.Owner, value, _ any) error {
	if value == nil {
		return wireOwner(o, d.Name(), nil)
	}
	coll, ok := value.(*Collection)
	if !ok {
		return attr.NewTypeMismatchError(o.TypeName(), d.Name(), "collection", value)
	}
	t, err := target(d, o)
	if err != nil {
		return err
	}
	if t != nil && coll.typ != nil && !coll.typ.Is(t) {
		return attr.NewTypeMismatchError(o.TypeName(), d.Name(), "collection of "+t.name, coll)
	}
	return wireOwner(o, d.Name(), coll)
}

func (collectionType) Equal(a, b any) bool { return sameRef(a, b) }

func wireOwner(o attr.Owner, name string, child any) error {
	if owner, ok := o.(*Entity); ok {
		owner.wire(name, child)
	}
	return nil
}

// wire replaces the subscription on the embedded child stored under name.
// Changes inside the child surface on the owner as change:<name>, change
// and a changeset naming <name>. Related children are independent and are
// not wired.
func (e *Entity) wire(name string, child any) {
	if unsub, ok := e.children[name]; ok {
		unsub()
		delete(e.children, name)
	}
	if d, ok := e.typ.attrs[name]; !ok || !d.Embedded() {
		return
	}
	switch c := child.(type) {
	case *Entity:
		e.children[name] = c.On(EventChangeset, func(Event) {
			e.childChanged(name, c)
		})
	case *Collection:
		e.children[name] = c.On("*", func(ev Event) {
			if bubbles(c, ev) {
				e.childChanged(name, c)
			}
		})
	}
}

// bubbles reports whether a collection event changes the collection's
// content: structural events it raised itself, or a member changeset.
func bubbles(c *Collection, ev Event) bool {
	if len(ev.Via) > 0 {
		return ev.Via[0] == c && ev.Name == EventChangeset
	}
	switch ev.Name {
	case EventAdd, EventRemoved, EventReorder, EventSort, EventReset:
		return true
	}
	return false
}

func (e *Entity) childChanged(name string, child any) {
	if e.relaying {
		return
	}
	e.relaying = true
	defer func() { e.relaying = false }()

	e.begin(false)
	defer e.end()

	e.pendingNew[name] = child
	if _, ok := e.pendingOld[name]; !ok {
		e.pendingOld[name] = child
	}
	ev := Event{Attr: name, Value: child, Previous: child}
	ev.Name = ChangeEvent(name)
	e.emit(ev)
	ev.Name = EventChange
	e.emit(ev)
}

// deepRevision sums revision counters through embedded children so Save can
// tell whether an embedded value changed while a request was in flight.
func deepRevision(v any, seen map[any]bool) uint64 {
	switch x := v.(type) {
	case *Entity:
		if seen[x] {
			return 0
		}
		seen[x] = true
		sum := x.revision
		for _, name := range x.typ.order {
			if x.typ.attrs[name].Embedded() {
				sum += deepRevision(x.values[name], seen)
			}
		}
		return sum
	case *Collection:
		if seen[x] {
			return 0
		}
		seen[x] = true
		sum := x.revision
		for _, m := range x.models {
			sum += deepRevision(m, seen)
		}
		return sum
	}
	return 0
}
