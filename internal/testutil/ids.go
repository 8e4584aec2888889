package testutil

import (
	"fmt"
	"sync"
)

// ScriptedIDs hands out a fixed list of ids, then falls back to
// prefix-N ids once the list is exhausted.
//
// Implements clientid.Generator and the id source used by the memory and
// badger providers, so golden output never depends on random UUIDs.
//
// Thread-safety: ScriptedIDs is safe for concurrent use via internal mutex.
type ScriptedIDs struct {
	mu     sync.Mutex
	ids    []string
	prefix string
	n      int
}

// NewScriptedIDs creates a generator that returns ids in order.
//
// If prefix is empty, fallback ids look like "id-1", "id-2".
func NewScriptedIDs(prefix string, ids ...string) *ScriptedIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &ScriptedIDs{ids: ids, prefix: prefix}
}

// Generate returns the next id.
func (g *ScriptedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if g.n <= len(g.ids) {
		return g.ids[g.n-1]
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.n-len(g.ids))
}
