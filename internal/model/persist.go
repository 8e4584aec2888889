package model

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/tracked/internal/attr"
)

// SaveOptions controls Save.
type SaveOptions struct {
	// Patch sends only changed persisted attributes for updates.
	Patch bool
}

// operation is one provider round trip, split so Collection.Sync can issue
// requests concurrently and apply the results serially.
type operation struct {
	entity   *Entity
	provider Provider
	req      *Request

	// snapshot is taken when the request is built; finish compares it with
	// the live values to find edits made while the request was in flight.
	snapshot map[string]any
	embedded map[string]uint64

	res *Result
	err error
}

func (op *operation) send(ctx context.Context) {
	op.res, op.err = call(ctx, op.provider, op.req)
}

// Save creates or updates the entity remotely. Related (non-embedded)
// collections are synced first.
//
// On success the returned record is merged (except attributes edited while
// the request was in flight), the entity is committed, and the in-flight
// edits are re-marked as modified. On failure nothing changes and an
// "error" event is emitted.
func (e *Entity) Save(ctx context.Context, opts SaveOptions) error {
	op, err := e.prepareSave(ctx, opts)
	if err != nil {
		return err
	}
	op.send(ctx)
	return e.finishSave(op)
}

func (e *Entity) prepareSave(ctx context.Context, opts SaveOptions) (*operation, error) {
	if !e.typ.Identifiable() {
		return nil, e.typ.missingID()
	}
	p, err := e.typ.persistence()
	if err != nil {
		return nil, err
	}

	for _, name := range e.typ.order {
		d := e.typ.attrs[name]
		coll, ok := e.values[name].(*Collection)
		if !ok || d.Embedded() || !d.Persist() {
			continue
		}
		if err := coll.Sync(ctx); err != nil {
			return nil, fmt.Errorf("save %s: sync %s: %w", e.typ.name, name, err)
		}
	}

	req := &Request{
		Method:      MethodCreate,
		Resource:    e.typ.resource,
		IDAttribute: e.typ.idAttr,
		ClientID:    e.clientID,
	}
	if e.IsNew() {
		req.Data = e.ToNative(NativeOptions{Raw: true, PersistedOnly: true})
	} else {
		req.Method = MethodUpdate
		req.ID = e.idValue()
		if opts.Patch {
			req.Patch = true
			req.Data = e.Changes(ChangeOptions{Raw: true, PersistedOnly: true})
		} else {
			req.Data = e.ToNative(NativeOptions{Raw: true, PersistedOnly: true})
		}
	}

	op := &operation{
		entity:   e,
		provider: p,
		req:      req,
		snapshot: maps.Clone(e.values),
		embedded: make(map[string]uint64),
	}
	for _, name := range e.typ.order {
		if e.typ.attrs[name].Embedded() {
			op.embedded[name] = deepRevision(e.values[name], make(map[any]bool))
		}
	}

	e.emit(Event{Name: EventRequest, Method: req.Method})
	return op, nil
}

func (e *Entity) finishSave(op *operation) error {
	if op.err != nil {
		e.emit(Event{Name: EventError, Method: op.req.Method, Err: op.err})
		return fmt.Errorf("%s %s %s: %w", op.req.Method, e.typ.name, e.clientID, op.err)
	}

	inflight := e.inflight(op)

	if op.res != nil && op.res.Record != nil {
		merge := e.typ.known(op.res.Record)
		for name := range merge {
			// Echoed nested values are projections; the local graph stays.
			if inflight[name] || isNested(e.values[name]) {
				delete(merge, name)
			}
		}
		if err := e.SetMap(merge); err != nil {
			e.emit(Event{Name: EventError, Method: op.req.Method, Err: err})
			return fmt.Errorf("%s %s %s: merge result: %w", op.req.Method, e.typ.name, e.clientID, err)
		}
	}

	e.Commit()
	for name := range inflight {
		e.modified[name] = op.snapshot[name]
	}

	e.typ.env.logger.Debug("entity synced",
		"type", e.typ.name,
		"client_id", e.clientID,
		"method", string(op.req.Method),
		"inflight", len(inflight),
	)
	e.emit(Event{Name: EventSync, Method: op.req.Method})
	return nil
}

// inflight returns the attributes whose value differs from the request
// snapshot, or whose embedded child changed since the snapshot.
func (e *Entity) inflight(op *operation) map[string]bool {
	out := make(map[string]bool)
	for _, name := range e.typ.order {
		d := e.typ.attrs[name]
		if !d.Equal(op.snapshot[name], e.values[name]) {
			out[name] = true
			continue
		}
		if rev, ok := op.embedded[name]; ok && deepRevision(e.values[name], make(map[any]bool)) != rev {
			out[name] = true
		}
	}
	return out
}

// Destroy deletes the entity remotely. An entity without an id is destroyed
// locally. Destroying an already destroyed entity is a no-op.
func (e *Entity) Destroy(ctx context.Context) error {
	op, done, err := e.prepareDestroy()
	if err != nil || done {
		return err
	}
	op.send(ctx)
	return e.finishDestroy(op)
}

// prepareDestroy returns done=true when no provider call is needed.
func (e *Entity) prepareDestroy() (*operation, bool, error) {
	if !e.typ.Identifiable() {
		return nil, false, e.typ.missingID()
	}
	if e.destroyed {
		return nil, true, nil
	}
	if e.IsNew() {
		e.markDestroyed()
		return nil, true, nil
	}
	p, err := e.typ.persistence()
	if err != nil {
		return nil, false, err
	}
	req := &Request{
		Method:      MethodDestroy,
		Resource:    e.typ.resource,
		IDAttribute: e.typ.idAttr,
		ID:          e.idValue(),
		ClientID:    e.clientID,
	}
	e.emit(Event{Name: EventRequest, Method: req.Method})
	return &operation{entity: e, provider: p, req: req}, false, nil
}

func (e *Entity) finishDestroy(op *operation) error {
	if op.err != nil {
		e.emit(Event{Name: EventError, Method: MethodDestroy, Err: op.err})
		return fmt.Errorf("destroy %s %s: %w", e.typ.name, e.clientID, op.err)
	}
	e.markDestroyed()
	return nil
}

func (e *Entity) markDestroyed() {
	e.destroyed = true
	e.typ.env.identity.Evict(e.typ.id, e.idValue(), e)
	e.emit(Event{Name: EventDestroy})
}

// Fetch reloads the entity from the provider and commits the result.
func (e *Entity) Fetch(ctx context.Context) error {
	if !e.typ.Identifiable() {
		return e.typ.missingID()
	}
	if e.IsNew() {
		return fmt.Errorf("fetch %s %s: %w", e.typ.name, e.clientID, ErrNew)
	}
	p, err := e.typ.persistence()
	if err != nil {
		return err
	}
	req := &Request{
		Method:      MethodRead,
		Resource:    e.typ.resource,
		IDAttribute: e.typ.idAttr,
		ID:          e.idValue(),
		ClientID:    e.clientID,
	}
	e.emit(Event{Name: EventRequest, Method: MethodRead})
	res, err := p.Read(ctx, req)
	if err == nil && res != nil && res.Record != nil {
		err = e.SetMap(e.typ.known(res.Record))
	}
	if err != nil {
		e.emit(Event{Name: EventError, Method: MethodRead, Err: err})
		return fmt.Errorf("fetch %s %s: %w", e.typ.name, e.clientID, err)
	}
	e.Commit()
	e.emit(Event{Name: EventSync, Method: MethodRead})
	return nil
}

var _ attr.Owner = (*Entity)(nil)
