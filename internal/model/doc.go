// Package model implements the change-tracked entity layer: typed entities
// built from attribute descriptors, ordered collections of entities, the
// identity map, and the native object converter.
//
// # Change tracking
//
// Every entity records, per attribute, the value it held immediately before
// its first change since the last Commit or Rollback. Rollback restores
// exactly those values; intermediate values are never retained.
//
// Set is re-entrant. Custom setters and change handlers may call Set on the
// same entity to any depth; a call-depth counter on the entity groups all of
// those changes into a single changeset event fired when the outermost call
// returns.
//
// # Persistence
//
// Entities and collections delegate remote operations to a Provider. Save
// snapshots the entity before issuing the request and reconciles afterwards:
// attributes edited while the request was in flight stay modified, with the
// snapshot value as their original, so concurrent edits are never lost or
// falsely marked clean.
//
// # Concurrency
//
// Entities and collections are not safe for concurrent use. All mutation
// happens on one logical thread. The only fan-out is inside Collection.Sync,
// where provider calls for independent members run concurrently against
// immutable request snapshots and completions are applied serially on the
// calling goroutine.
package model
