// Package event provides the ordered, re-entrancy-safe notification
// primitive shared by entities and collections.
//
// Handlers run synchronously on the emitting goroutine in subscription
// order. A handler may emit further events, subscribe, or unsubscribe while
// a dispatch is in progress:
//   - handlers added during a dispatch are not called for that dispatch
//   - handlers removed during a dispatch are skipped if not yet called
package event

// All subscribes a handler to every event name.
const All = "*"

// Handler receives one event payload.
type Handler[E any] func(E)

type subscription[E any] struct {
	name   string
	fn     Handler[E]
	once   bool
	active bool
}

// Emitter fans out named events to subscribed handlers.
//
// The zero value is ready to use. An Emitter is not safe for concurrent use.
type Emitter[E any] struct {
	subs []*subscription[E]
}

// On subscribes fn to events named name (or every event for All) and
// returns a function that cancels the subscription.
func (e *Emitter[E]) On(name string, fn Handler[E]) func() {
	return e.add(name, fn, false)
}

// Once subscribes fn for the next matching event only.
func (e *Emitter[E]) Once(name string, fn Handler[E]) func() {
	return e.add(name, fn, true)
}

func (e *Emitter[E]) add(name string, fn Handler[E], once bool) func() {
	if fn == nil {
		return func() {}
	}
	sub := &subscription[E]{name: name, fn: fn, once: once, active: true}
	e.subs = append(e.subs, sub)
	return func() { e.remove(sub) }
}

func (e *Emitter[E]) remove(sub *subscription[E]) {
	if !sub.active {
		return
	}
	sub.active = false
	for i, s := range e.subs {
		if s == sub {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Emit calls every active handler subscribed to name or All.
func (e *Emitter[E]) Emit(name string, payload E) {
	if len(e.subs) == 0 {
		return
	}
	// Snapshot so handlers can (un)subscribe during dispatch.
	subs := make([]*subscription[E], len(e.subs))
	copy(subs, e.subs)

	for _, sub := range subs {
		if !sub.active || (sub.name != name && sub.name != All) {
			continue
		}
		if sub.once {
			e.remove(sub)
		}
		sub.fn(payload)
	}
}

// Count returns the number of active handlers that would receive name.
func (e *Emitter[E]) Count(name string) int {
	n := 0
	for _, sub := range e.subs {
		if sub.name == name || sub.name == All {
			n++
		}
	}
	return n
}

// Reset drops every subscription.
func (e *Emitter[E]) Reset() {
	for _, sub := range e.subs {
		sub.active = false
	}
	e.subs = nil
}
