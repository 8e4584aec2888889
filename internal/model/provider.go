package model

import (
	"context"
	"errors"
)

// ErrNoProvider is returned by persistence operations when neither the
// entity type nor its Env has a Provider.
var ErrNoProvider = errors.New("model: no persistence provider")

// ErrNew is returned when fetching an entity that has no id yet.
var ErrNew = errors.New("model: entity has no id")

// Method identifies a provider operation.
type Method string

const (
	MethodCreate  Method = "create"
	MethodRead    Method = "read"
	MethodUpdate  Method = "update"
	MethodDestroy Method = "destroy"
)

// Request is the immutable projection of an entity (or collection, for
// Many reads) handed to a Provider. It never carries bookkeeping state.
type Request struct {
	Method Method

	// Resource names the remote collection, from the entity type.
	Resource string

	// IDAttribute names the attribute that holds the id within Data.
	IDAttribute string

	// ID is the id value; nil for create and for Many reads.
	ID any

	// ClientID is the requesting entity's client id, for correlation only.
	ClientID string

	// Data is the persisted raw projection. For patch updates it holds only
	// the changed persisted attributes.
	Data map[string]any

	// Patch marks an incremental update.
	Patch bool

	// Many marks a read of every record of Resource.
	Many bool
}

// Result is a successful provider response. Record, when non-nil, is
// merged into the entity. Records answers Many reads.
type Result struct {
	Record  map[string]any
	Records []map[string]any
}

// Provider performs remote create/read/update/destroy. Failures are returned
// as errors and leave the entity's modification state intact.
type Provider interface {
	Create(ctx context.Context, req *Request) (*Result, error)
	Read(ctx context.Context, req *Request) (*Result, error)
	Update(ctx context.Context, req *Request) (*Result, error)
	Destroy(ctx context.Context, req *Request) (*Result, error)
}

// call dispatches req to the provider method named by req.Method.
func call(ctx context.Context, p Provider, req *Request) (*Result, error) {
	switch req.Method {
	case MethodCreate:
		return p.Create(ctx, req)
	case MethodRead:
		return p.Read(ctx, req)
	case MethodUpdate:
		return p.Update(ctx, req)
	case MethodDestroy:
		return p.Destroy(ctx, req)
	}
	return nil, errors.New("model: unknown provider method " + string(req.Method))
}
