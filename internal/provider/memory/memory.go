// Package memory provides an in-memory record backend, intended for tests,
// examples and the CLI's dry runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/tracked/internal/attr"
	"github.com/roach88/tracked/internal/provider"
)

// Backend is a minimal in-memory provider.Backend. Records are deep-copied
// on the way in and out; List returns records in first-insert order.
type Backend struct {
	mu      sync.RWMutex
	records map[string]map[string]map[string]any
	order   map[string][]string
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		records: map[string]map[string]map[string]any{},
		order:   map[string][]string{},
	}
}

func (b *Backend) Get(_ context.Context, resource, id string) (map[string]any, error) {
	b.mu.RLock()
	rec, ok := b.records[resource][id]
	b.mu.RUnlock()
	if !ok {
		return nil, provider.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (b *Backend) Put(_ context.Context, resource, id string, record map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	recs := b.records[resource]
	if recs == nil {
		recs = map[string]map[string]any{}
		b.records[resource] = recs
	}
	if _, exists := recs[id]; !exists {
		b.order[resource] = append(b.order[resource], id)
	}
	recs[id] = cloneRecord(record)
	return nil
}

func (b *Backend) Delete(_ context.Context, resource, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[resource][id]; !ok {
		return provider.ErrNotFound
	}
	delete(b.records[resource], id)
	b.order[resource] = slices.DeleteFunc(b.order[resource], func(s string) bool { return s == id })
	return nil
}

func (b *Backend) List(_ context.Context, resource string) ([]map[string]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.order[resource]
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRecord(b.records[resource][id]))
	}
	return out, nil
}

// Len returns the number of records stored for resource.
func (b *Backend) Len(resource string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records[resource])
}

func cloneRecord(rec map[string]any) map[string]any {
	if rec == nil {
		return map[string]any{}
	}
	return attr.Clone(rec).(map[string]any)
}

var _ provider.Backend = (*Backend)(nil)
