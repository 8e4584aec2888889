// Package provider implements model.Provider on top of simple record
// backends, and decorates providers with metrics and request logging.
//
// A Backend stores opaque records (persisted raw projections) keyed by
// resource and id. Store translates create/read/update/destroy requests into
// backend calls:
//
//   - create assigns an id when the request data carries none
//   - update with Patch merges the changed attributes into the stored record
//   - read and destroy of a missing record fail with ErrNotFound
//   - read with Many lists every record of the resource
//
// Backends live in subpackages: memory, sqlite and badger.
package provider
