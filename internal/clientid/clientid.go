// Package clientid generates process-unique client ids for entities and
// collections. Client ids are assigned once at construction and never change.
package clientid

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Generator produces client ids.
// Implemented by Sequence (default, short and deterministic) and UUIDv7.
type Generator interface {
	Generate() string
}

// Sequence generates prefix+counter ids: "c1", "c2", ...
//
// Thread-safety: Sequence is safe for concurrent use via internal mutex.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      uint64
}

// NewSequence creates a sequence generator. An empty prefix defaults to "c".
//
// Example:
//
//	gen := NewSequence("c")
//	gen.Generate() // "c1"
//	gen.Generate() // "c2"
func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "c"
	}
	return &Sequence{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (s *Sequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.prefix + strconv.FormatUint(s.n, 10)
}

// UUIDv7 generates time-sortable UUIDv7 client ids.
//
// Useful when client ids must stay unique across processes, e.g. when they
// are echoed to a remote store as a correlation key.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
