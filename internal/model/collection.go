package model

import (
	"fmt"
	"slices"

	"github.com/roach88/tracked/internal/attr"
	"github.com/roach88/tracked/internal/event"
)

// Factory builds a member from a plain map (or a bare id value) added to a
// collection.
type Factory func(v any) (*Entity, error)

// Comparator orders collection members; it follows the slices.SortFunc contract.
type Comparator func(a, b *Entity) int

// Collection is an ordered, change-tracked set of entities indexed by client
// id and by id. Each member appears at most once.
//
// Member events are re-emitted by the collection with the collection
// prepended to Event.Via. A member that is destroyed is removed
// automatically. Members removed explicitly are queued and destroyed
// remotely by Sync.
type Collection struct {
	env      *Env
	typ      *Type
	clientID string
	factory  Factory
	compare  Comparator
	patch    bool
	initial  []any

	models     []*Entity
	byClientID map[string]*Entity
	byID       map[string]*Entity
	idKeys     map[string]string
	subs       map[string]func()

	removed   []*Entity
	modified  bool
	committed []*Entity
	revision  uint64

	events event.Emitter[Event]
}

// CollectionOption configures a Collection.
type CollectionOption func(*Collection)

// WithFactory overrides how plain maps and bare ids become members.
func WithFactory(f Factory) CollectionOption {
	return func(c *Collection) {
		c.factory = f
	}
}

// WithComparator keeps the collection sorted by cmp.
func WithComparator(cmp Comparator) CollectionOption {
	return func(c *Collection) {
		c.compare = cmp
	}
}

// WithPatch makes Sync send incremental updates for modified members.
func WithPatch() CollectionOption {
	return func(c *Collection) {
		c.patch = true
	}
}

// WithModels sets the initial members. They start out committed.
func WithModels(items ...any) CollectionOption {
	return func(c *Collection) {
		c.initial = append(c.initial, items...)
	}
}

func newCollection(env *Env, t *Type, opts ...CollectionOption) (*Collection, error) {
	c := &Collection{
		env:        env,
		typ:        t,
		clientID:   env.nextClientID(),
		byClientID: make(map[string]*Entity),
		byID:       make(map[string]*Entity),
		idKeys:     make(map[string]string),
		subs:       make(map[string]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.factory == nil && t != nil {
		c.factory = t.coerce
	}
	if len(c.initial) > 0 {
		items := c.initial
		c.initial = nil
		for _, item := range items {
			m, err := c.coerce(item)
			if err != nil {
				return nil, err
			}
			if _, dup := c.byClientID[m.clientID]; dup {
				continue
			}
			c.attach(m, len(c.models))
		}
		c.resort()
	}
	c.commit(make(map[any]bool))
	return c, nil
}

// Type returns the member type, nil for untyped collections.
func (c *Collection) Type() *Type { return c.typ }

// TypeName describes the collection for error reports.
func (c *Collection) TypeName() string {
	if c.typ == nil {
		return "collection"
	}
	return "collection of " + c.typ.name
}

// ClientID returns the process-unique client id.
func (c *Collection) ClientID() string { return c.clientID }

// On subscribes fn to events named name (event.All for every event) and
// returns the unsubscribe function.
func (c *Collection) On(name string, fn func(Event)) func() {
	return c.events.On(name, fn)
}

// Once subscribes fn for the next matching event only.
func (c *Collection) Once(name string, fn func(Event)) func() {
	return c.events.Once(name, fn)
}

func (c *Collection) emit(ev Event) {
	ev.Collection = c
	c.events.Emit(ev.Name, ev)
}

// Len returns the number of members.
func (c *Collection) Len() int { return len(c.models) }

// At returns the member at index i, or nil when out of range.
func (c *Collection) At(i int) *Entity {
	if i < 0 || i >= len(c.models) {
		return nil
	}
	return c.models[i]
}

// Models returns a copy of the members in order.
func (c *Collection) Models() []*Entity {
	return slices.Clone(c.models)
}

// Get returns the member with the given id.
func (c *Collection) Get(id any) (*Entity, bool) {
	key, ok := idKey(id)
	if !ok {
		return nil, false
	}
	m, ok := c.byID[key]
	return m, ok
}

// GetByClientID returns the member with the given client id.
func (c *Collection) GetByClientID(clientID string) (*Entity, bool) {
	m, ok := c.byClientID[clientID]
	return m, ok
}

// Contains reports whether m is a member.
func (c *Collection) Contains(m *Entity) bool {
	return m != nil && c.byClientID[m.clientID] == m
}

// IndexOf returns the position of m, or -1.
func (c *Collection) IndexOf(m *Entity) int {
	if !c.Contains(m) {
		return -1
	}
	return slices.Index(c.models, m)
}

// PendingRemovals returns the members queued for remote destruction.
func (c *Collection) PendingRemovals() []*Entity {
	return slices.Clone(c.removed)
}

// Add appends items. See Insert.
func (c *Collection) Add(items ...any) ([]*Entity, error) {
	return c.insert(-1, items)
}

// Insert adds items at index (clamped to the current length).
//
// Items may be entities, plain maps or bare ids; maps and ids go through the
// factory. A member already present is moved to the requested position with
// a "reorder" event. A member that was queued for removal is un-queued.
// One "add" event lists the members that were not already present.
func (c *Collection) Insert(index int, items ...any) ([]*Entity, error) {
	return c.insert(index, items)
}

func (c *Collection) insert(index int, items []any) ([]*Entity, error) {
	explicit := index >= 0
	at := len(c.models)
	if explicit {
		at = min(index, len(c.models))
	}

	var added []*Entity
	var err error
	reordered := false
	for _, item := range items {
		var m *Entity
		m, err = c.coerce(item)
		if err != nil {
			break
		}

		if c.Contains(m) {
			if !explicit {
				continue
			}
			from := slices.Index(c.models, m)
			c.models = slices.Delete(c.models, from, from+1)
			to := min(at, len(c.models))
			c.models = slices.Insert(c.models, to, m)
			c.touch()
			c.emit(Event{Name: EventReorder, Entity: m, From: from, To: to})
			reordered = true
			at = to + 1
			continue
		}

		c.removed = slices.DeleteFunc(c.removed, func(r *Entity) bool { return r == m })
		c.attach(m, at)
		c.touch()
		added = append(added, m)
		at++
	}

	if len(added) > 0 || reordered {
		c.resort()
	}
	if len(added) > 0 {
		c.emit(Event{Name: EventAdd, Models: added})
	}
	return added, err
}

func (c *Collection) coerce(item any) (*Entity, error) {
	var m *Entity
	switch v := item.(type) {
	case *Entity:
		m = v
	case nil:
		return nil, fmt.Errorf("collection %s: nil member", c.clientID)
	default:
		if c.factory == nil {
			return nil, fmt.Errorf("collection %s: no factory for %T", c.clientID, item)
		}
		var err error
		if m, err = c.factory(item); err != nil {
			return nil, err
		}
	}
	if c.typ != nil && !m.typ.Is(c.typ) {
		return nil, attr.NewTypeMismatchError(c.TypeName(), "", "entity "+c.typ.name, m)
	}
	return m, nil
}

// attach inserts m at index i, indexes it and subscribes to its events.
func (c *Collection) attach(m *Entity, i int) {
	c.models = slices.Insert(c.models, i, m)
	c.byClientID[m.clientID] = m
	c.index(m)
	c.subs[m.clientID] = m.On(event.All, func(ev Event) {
		c.relay(m, ev)
	})
}

// detach drops m from the indexes and the event relay.
func (c *Collection) detach(m *Entity) {
	delete(c.byClientID, m.clientID)
	if key, ok := c.idKeys[m.clientID]; ok {
		if c.byID[key] == m {
			delete(c.byID, key)
		}
		delete(c.idKeys, m.clientID)
	}
	if unsub, ok := c.subs[m.clientID]; ok {
		unsub()
		delete(c.subs, m.clientID)
	}
}

func (c *Collection) index(m *Entity) {
	if key, ok := c.idKeys[m.clientID]; ok {
		if c.byID[key] == m {
			delete(c.byID, key)
		}
		delete(c.idKeys, m.clientID)
	}
	if key, ok := idKey(m.idValue()); ok {
		c.byID[key] = m
		c.idKeys[m.clientID] = key
	}
}

func idKey(id any) (string, bool) {
	if isAbsentID(id) {
		return "", false
	}
	return fmt.Sprint(id), true
}

func (c *Collection) relay(m *Entity, ev Event) {
	own := ev.Entity == m && len(ev.Via) == 0
	// A rollback may restore the id without a change event.
	if own && (ev.Name == ChangeEvent(m.typ.idAttr) || ev.Name == EventRollback) {
		c.index(m)
	}
	c.events.Emit(ev.Name, ev.relayed(c))
	if own && ev.Name == EventDestroy && c.Contains(m) {
		c.removeMembers([]*Entity{m}, false)
	}
}

func (c *Collection) touch() {
	c.modified = true
	c.revision++
}

// Remove takes items (entities, ids or maps carrying an id) out of the
// collection and queues them for remote destruction. Items that are not
// members are ignored. Emits "remove" per member, then one "removed".
func (c *Collection) Remove(items ...any) []*Entity {
	var members []*Entity
	for _, item := range items {
		if m := c.resolve(item); m != nil && !slices.Contains(members, m) {
			members = append(members, m)
		}
	}
	return c.removeMembers(members, true)
}

func (c *Collection) resolve(item any) *Entity {
	switch v := item.(type) {
	case *Entity:
		if c.Contains(v) {
			return v
		}
		return nil
	case map[string]any:
		if c.typ == nil {
			return nil
		}
		m, _ := c.Get(v[c.typ.idAttr])
		return m
	default:
		m, _ := c.Get(v)
		return m
	}
}

func (c *Collection) removeMembers(members []*Entity, queue bool) []*Entity {
	var removed []*Entity
	for _, m := range members {
		i := slices.Index(c.models, m)
		if i < 0 {
			continue
		}
		c.models = slices.Delete(c.models, i, i+1)
		c.detach(m)
		c.touch()
		if queue && !m.destroyed && !slices.Contains(c.removed, m) {
			c.removed = append(c.removed, m)
		}
		if !queue {
			c.dropPending(m)
		}
		removed = append(removed, m)
		c.emit(Event{Name: EventRemove, Entity: m, From: i})
	}
	if len(removed) > 0 {
		c.emit(Event{Name: EventRemoved, Models: removed})
	}
	return removed
}

func (c *Collection) dropPending(m *Entity) {
	c.removed = slices.DeleteFunc(c.removed, func(r *Entity) bool { return r == m })
}

// Reset replaces the membership without queuing the old members for
// destruction. Emits one "reset" event.
func (c *Collection) Reset(items ...any) error {
	models := make([]*Entity, 0, len(items))
	for _, item := range items {
		m, err := c.coerce(item)
		if err != nil {
			return err
		}
		if !slices.Contains(models, m) {
			models = append(models, m)
		}
	}
	c.replace(models)
	c.touch()
	c.emit(Event{Name: EventReset})
	return nil
}

func (c *Collection) replace(models []*Entity) {
	for _, m := range c.models {
		c.detach(m)
	}
	c.models = nil
	for _, m := range models {
		c.dropPending(m)
		c.attach(m, len(c.models))
	}
	c.resort()
}

// SetComparator installs cmp and re-sorts.
func (c *Collection) SetComparator(cmp Comparator) {
	c.compare = cmp
	c.Sort()
}

// Sort re-orders members with the comparator, if any, and emits "sort".
func (c *Collection) Sort() {
	if c.compare == nil {
		return
	}
	c.resort()
	c.touch()
	c.emit(Event{Name: EventSort})
}

func (c *Collection) resort() {
	if c.compare != nil {
		slices.SortStableFunc(c.models, c.compare)
	}
}

// ModifiedOptions controls Collection.IsModified.
type ModifiedOptions struct {
	// Shallow ignores member modifications.
	Shallow bool

	// PersistedOnly ignores modifications of transient member attributes.
	PersistedOnly bool
}

// IsModified reports structural changes since the last Commit and, unless
// Shallow, modifications of any member.
func (c *Collection) IsModified(opts ModifiedOptions) bool {
	return c.isModified(opts, make(map[any]bool))
}

func (c *Collection) isModified(opts ModifiedOptions, seen map[any]bool) bool {
	if seen[c] {
		return false
	}
	seen[c] = true
	if c.modified {
		return true
	}
	if opts.Shallow {
		return false
	}
	for _, m := range c.models {
		if m.isModified(opts.PersistedOnly, seen) {
			return true
		}
	}
	return false
}

// Commit marks the membership and every member as clean.
func (c *Collection) Commit() {
	c.commit(make(map[any]bool))
}

func (c *Collection) commit(seen map[any]bool) {
	if seen[c] {
		return
	}
	seen[c] = true
	c.commitMembership()
	for _, m := range c.models {
		m.commit(seen)
	}
}

func (c *Collection) commitMembership() {
	c.modified = false
	c.committed = slices.Clone(c.models)
}

// Rollback restores the committed membership. With Cascade, members are
// rolled back too.
func (c *Collection) Rollback(opts ...RollbackOption) {
	var cfg rollbackConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	c.rollback(cfg, make(map[any]bool))
}

func (c *Collection) rollback(cfg rollbackConfig, seen map[any]bool) {
	if seen[c] {
		return
	}
	seen[c] = true

	if c.modified {
		c.replace(slices.DeleteFunc(slices.Clone(c.committed), func(m *Entity) bool {
			return m.destroyed
		}))
		c.modified = false
		c.revision++
	}
	if cfg.cascade {
		for _, m := range c.models {
			m.rollback(cfg, seen)
		}
	}
	c.emit(Event{Name: EventRollback})
}
