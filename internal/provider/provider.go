package provider

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/tracked/internal/clientid"
	"github.com/roach88/tracked/internal/model"
)

// Backend stores records keyed by resource and id.
//
// Get and Delete return ErrNotFound for unknown ids. List returns records in
// a stable order (insertion order for memory, sequence order for sqlite, key
// order for badger).
type Backend interface {
	Get(ctx context.Context, resource, id string) (map[string]any, error)
	Put(ctx context.Context, resource, id string, record map[string]any) error
	Delete(ctx context.Context, resource, id string) error
	List(ctx context.Context, resource string) ([]map[string]any, error)
}

// Option configures a Store.
type Option func(*Store)

// WithIDs sets the generator used for ids of created records.
// Default: clientid.UUIDv7.
func WithIDs(gen clientid.Generator) Option {
	return func(s *Store) {
		s.ids = gen
	}
}

// WithLogger sets the store logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store adapts a Backend to model.Provider.
type Store struct {
	backend Backend
	ids     clientid.Generator
	logger  *slog.Logger
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		ids:     clientid.UUIDv7{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the wrapped backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Create stores req.Data as a new record and returns it with its id.
func (s *Store) Create(ctx context.Context, req *model.Request) (*model.Result, error) {
	rec := maps.Clone(req.Data)
	if rec == nil {
		rec = make(map[string]any)
	}
	id := idString(rec[req.IDAttribute])
	if id == "" {
		id = s.ids.Generate()
		rec[req.IDAttribute] = id
	}
	if err := s.backend.Put(ctx, req.Resource, id, rec); err != nil {
		return nil, fmt.Errorf("create %s: %w", req.Resource, err)
	}
	s.logger.Debug("record created", "resource", req.Resource, "id", id)
	return &model.Result{Record: maps.Clone(rec)}, nil
}

// Read returns one record, or every record of the resource for Many reads.
func (s *Store) Read(ctx context.Context, req *model.Request) (*model.Result, error) {
	if req.Many {
		recs, err := s.backend.List(ctx, req.Resource)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", req.Resource, err)
		}
		return &model.Result{Records: recs}, nil
	}
	id := idString(req.ID)
	if id == "" {
		return nil, fmt.Errorf("read %s: %w", req.Resource, ErrMissingID)
	}
	rec, err := s.backend.Get(ctx, req.Resource, id)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", req.Resource, id, err)
	}
	return &model.Result{Record: rec}, nil
}

// Update replaces the stored record, or merges into it for patch requests.
// Updating a record that does not exist yet stores it.
func (s *Store) Update(ctx context.Context, req *model.Request) (*model.Result, error) {
	id := idString(req.ID)
	if id == "" {
		return nil, fmt.Errorf("update %s: %w", req.Resource, ErrMissingID)
	}

	rec := maps.Clone(req.Data)
	if req.Patch {
		existing, err := s.backend.Get(ctx, req.Resource, id)
		switch {
		case err == nil:
			maps.Copy(existing, req.Data)
			rec = existing
		case IsNotFound(err):
		default:
			return nil, fmt.Errorf("update %s/%s: %w", req.Resource, id, err)
		}
	}
	if rec == nil {
		rec = make(map[string]any)
	}
	rec[req.IDAttribute] = req.ID

	if err := s.backend.Put(ctx, req.Resource, id, rec); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", req.Resource, id, err)
	}
	s.logger.Debug("record updated", "resource", req.Resource, "id", id, "patch", req.Patch)
	return &model.Result{Record: maps.Clone(rec)}, nil
}

// Destroy deletes the record.
func (s *Store) Destroy(ctx context.Context, req *model.Request) (*model.Result, error) {
	id := idString(req.ID)
	if id == "" {
		return nil, fmt.Errorf("destroy %s: %w", req.Resource, ErrMissingID)
	}
	if err := s.backend.Delete(ctx, req.Resource, id); err != nil {
		return nil, fmt.Errorf("destroy %s/%s: %w", req.Resource, id, err)
	}
	s.logger.Debug("record destroyed", "resource", req.Resource, "id", id)
	return &model.Result{}, nil
}

// idString renders an id value as a backend key. Nil yields "".
func idString(id any) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id)
}

var _ model.Provider = (*Store)(nil)
