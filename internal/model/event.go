package model

import (
	"slices"
	"strings"
)

// Event names raised by entities and collections.
const (
	EventChange    = "change"
	EventChangeset = "changeset"
	EventRequest   = "request"
	EventSync      = "sync"
	EventError     = "error"
	EventDestroy   = "destroy"
	EventRollback  = "rollback"

	EventAdd     = "add"
	EventRemove  = "remove"
	EventRemoved = "removed"
	EventReorder = "reorder"
	EventSort    = "sort"
	EventReset   = "reset"
)

const changePrefix = EventChange + ":"

// ChangeEvent returns the per-attribute change event name, e.g. "change:title".
func ChangeEvent(attr string) string {
	return changePrefix + attr
}

// ChangedAttribute extracts the attribute from a per-attribute change event name.
func ChangedAttribute(name string) (string, bool) {
	return strings.CutPrefix(name, changePrefix)
}

// Event is the payload of every notification.
//
// Field use by event:
//   - change:<attr>, change: Entity, Attr, Value, Previous
//   - changeset: Entity, Changeset
//   - request, sync, error: Entity or Collection, Method, Err
//   - destroy, rollback: Entity (rollback may also come from a Collection)
//   - add, removed: Collection, Models
//   - remove: Collection, Entity, From
//   - reorder: Collection, Entity, From, To
//   - sort, reset: Collection
type Event struct {
	Name string

	// Entity is the entity the event is about.
	Entity *Entity

	// Collection is the collection that raised a structural event.
	Collection *Collection

	// Via lists the collections that relayed this event, most recent first.
	// A collection re-emitting a member event prepends itself.
	Via []*Collection

	Attr     string
	Value    any
	Previous any

	Changeset *Changeset
	Models    []*Entity

	From int
	To   int

	Method Method
	Err    error
}

// relayed returns a copy of ev with c prepended to Via.
func (ev Event) relayed(c *Collection) Event {
	via := make([]*Collection, 0, len(ev.Via)+1)
	via = append(via, c)
	ev.Via = append(via, ev.Via...)
	return ev
}

// Changeset aggregates every attribute change made during one outer Set,
// including changes made by custom setters and change handlers.
// Values and Previous hold read-transformed values.
type Changeset struct {
	Values   map[string]any
	Previous map[string]any
}

// Keys returns the changed attribute names, sorted.
func (cs *Changeset) Keys() []string {
	keys := make([]string, 0, len(cs.Values))
	for k := range cs.Values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Has reports whether name changed.
func (cs *Changeset) Has(name string) bool {
	_, ok := cs.Values[name]
	return ok
}

// Len returns the number of changed attributes.
func (cs *Changeset) Len() int {
	return len(cs.Values)
}
