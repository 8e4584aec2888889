package model

import (
	"github.com/roach88/tracked/internal/attr"
)

// NativeOptions controls the native projection.
type NativeOptions struct {
	// Raw applies raw transforms instead of read transforms. Related
	// (non-embedded) entities project as their id, related collections as
	// a slice of ids.
	Raw bool

	// PersistedOnly omits transient attributes.
	PersistedOnly bool
}

// ToNative projects the entity into plain maps, slices and scalars.
//
// Within one projection each entity and collection is converted once: a
// value reachable along several paths yields the same map (or slice) at
// every position, and a cycle yields a map that contains itself. Encoders
// that cannot represent cycles must check for them.
func (e *Entity) ToNative(opts NativeOptions) map[string]any {
	return newConverter(opts).entity(e)
}

// ToNative projects every member, in order.
func (c *Collection) ToNative(opts NativeOptions) []any {
	return newConverter(opts).collection(c)
}

// ToNative projects v when it is an entity or collection; other values are
// deep-copied.
func ToNative(v any, opts NativeOptions) any {
	switch x := v.(type) {
	case *Entity:
		return x.ToNative(opts)
	case *Collection:
		return x.ToNative(opts)
	}
	return attr.Clone(v)
}

type converter struct {
	opts NativeOptions
	// done maps client ids to their output. Entries are registered before
	// the value's own attributes are converted.
	done map[string]any
}

func newConverter(opts NativeOptions) *converter {
	return &converter{opts: opts, done: make(map[string]any)}
}

func (cv *converter) entity(e *Entity) map[string]any {
	if out, ok := cv.done[e.clientID]; ok {
		return out.(map[string]any)
	}
	out := make(map[string]any, len(e.typ.order))
	cv.done[e.clientID] = out
	for _, name := range e.typ.order {
		d := e.typ.attrs[name]
		if cv.opts.PersistedOnly && !d.Persist() {
			continue
		}
		out[name] = cv.attribute(e, d)
	}
	return out
}

func (cv *converter) collection(c *Collection) []any {
	if out, ok := cv.done[c.clientID]; ok {
		return out.([]any)
	}
	// Allocated at full length so the cached slice header stays valid.
	out := make([]any, len(c.models))
	cv.done[c.clientID] = out
	for i, m := range c.models {
		out[i] = cv.entity(m)
	}
	return out
}

func (cv *converter) attribute(e *Entity, d *attr.Descriptor) any {
	stored := e.values[d.Name()]
	related := cv.opts.Raw && !d.Embedded()

	switch child := stored.(type) {
	case *Entity:
		if related {
			return child.idValue()
		}
		return cv.entity(child)
	case *Collection:
		if related {
			ids := make([]any, len(child.models))
			for i, m := range child.models {
				ids[i] = m.idValue()
			}
			return ids
		}
		return cv.collection(child)
	}

	if cv.opts.Raw {
		return attr.Clone(d.RawValue(e, stored))
	}
	return attr.Clone(d.Read(e, stored))
}
