package model

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Sync persists the collection: new members are created, members with
// modified persisted attributes are updated, and members queued by Remove
// are destroyed. Members already destroyed by another path are dropped from
// the queue without a second destroy.
//
// Requests are built on the calling goroutine, provider calls run
// concurrently (bounded by the Env's sync concurrency), and results are
// applied serially in member order. A failed member keeps its state and is
// retried by the next Sync; successes are never repeated.
func (c *Collection) Sync(ctx context.Context) error {
	var (
		ops    []*operation
		failed []*Entity
		errs   []error
	)
	fail := func(m *Entity, err error) {
		failed = append(failed, m)
		errs = append(errs, err)
	}

	saveOpts := SaveOptions{Patch: c.patch}
	for _, m := range slices.Clone(c.models) {
		if !m.IsNew() && !m.isModified(true, make(map[any]bool)) {
			continue
		}
		op, err := m.prepareSave(ctx, saveOpts)
		if err != nil {
			fail(m, err)
			continue
		}
		ops = append(ops, op)
	}

	for _, m := range slices.Clone(c.removed) {
		op, done, err := m.prepareDestroy()
		switch {
		case err != nil:
			fail(m, err)
		case done:
			c.dropPending(m)
		default:
			ops = append(ops, op)
		}
	}

	var g errgroup.Group
	g.SetLimit(c.env.syncConcurrency)
	for _, op := range ops {
		g.Go(func() error {
			op.send(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for _, op := range ops {
		m := op.entity
		if op.req.Method == MethodDestroy {
			if err := m.finishDestroy(op); err != nil {
				fail(m, err)
				continue
			}
			c.dropPending(m)
			continue
		}
		if err := m.finishSave(op); err != nil {
			fail(m, err)
		}
	}

	if len(errs) > 0 {
		c.env.logger.Warn("collection sync incomplete",
			"collection", c.clientID,
			"requests", len(ops),
			"failed", len(failed),
		)
		err := &SyncError{Failed: failed, Err: errors.Join(errs...)}
		c.emit(Event{Name: EventError, Err: err})
		return err
	}

	c.commitMembership()
	c.env.logger.Debug("collection synced",
		"collection", c.clientID,
		"requests", len(ops),
	)
	c.emit(Event{Name: EventSync})
	return nil
}

// Fetch replaces the membership with every record of the member type's
// resource. Records with known ids map onto live instances through the
// identity map; fetched members are committed.
func (c *Collection) Fetch(ctx context.Context) error {
	if c.typ == nil {
		return fmt.Errorf("fetch collection %s: untyped collection", c.clientID)
	}
	p, err := c.typ.persistence()
	if err != nil {
		return err
	}
	req := &Request{
		Method:      MethodRead,
		Resource:    c.typ.resource,
		IDAttribute: c.typ.idAttr,
		ClientID:    c.clientID,
		Many:        true,
	}
	c.emit(Event{Name: EventRequest, Method: MethodRead})

	res, err := p.Read(ctx, req)
	var models []*Entity
	if err == nil && res != nil {
		models = make([]*Entity, 0, len(res.Records))
		for _, rec := range res.Records {
			var m *Entity
			if m, err = c.coerce(c.typ.known(rec)); err != nil {
				break
			}
			m.Commit()
			if !slices.Contains(models, m) {
				models = append(models, m)
			}
		}
	}
	if err != nil {
		c.emit(Event{Name: EventError, Method: MethodRead, Err: err})
		return fmt.Errorf("fetch %s: %w", c.typ.resource, err)
	}

	c.replace(models)
	c.removed = nil
	c.revision++
	c.commitMembership()
	c.emit(Event{Name: EventReset})
	c.emit(Event{Name: EventSync, Method: MethodRead})
	return nil
}
