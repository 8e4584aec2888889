// Package canon serializes native projections (plain maps, slices and
// scalars) to canonical JSON and derives content hashes from it.
//
// Canonical form:
//   - Object keys sorted by UTF-16 code units (RFC 8785), not UTF-8 bytes
//   - No HTML escaping; U+2028/U+2029 emitted literally
//   - Strings NFC normalized at the serialization boundary
//   - Integers in decimal; floats in shortest round-trip form; NaN/Inf rejected
//   - time.Time encoded as RFC 3339 in UTC
//
// Native projections may share containers (see model.ToNative). Shared
// containers are serialized once per reference; a container that contains
// itself is rejected with ErrCycle, since JSON cannot express it.
package canon
