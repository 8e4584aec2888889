package model

import (
	"errors"
	"fmt"
)

// ErrUnknownEntityType is returned when a nested attribute names an entity
// type that is not defined in the Env.
var ErrUnknownEntityType = errors.New("model: unknown entity type")

// ErrDuplicateEntityType is returned when a type name is defined twice in one Env.
var ErrDuplicateEntityType = errors.New("model: entity type already defined")

// SyncError aggregates the failures of one Collection.Sync. Members that
// succeeded are not listed and are not retried by a later Sync.
type SyncError struct {
	// Failed lists the members whose save or destroy failed.
	Failed []*Entity

	// Err joins the individual failures.
	Err error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %d member(s) failed: %v", len(e.Failed), e.Err)
}

// Unwrap exposes the joined member errors to errors.Is/As.
func (e *SyncError) Unwrap() error {
	return e.Err
}
