package clientid

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	gen := NewSequence("")
	assert.Equal(t, "c1", gen.Generate())
	assert.Equal(t, "c2", gen.Generate())

	other := NewSequence("col")
	assert.Equal(t, "col1", other.Generate())
}

func TestSequence_ConcurrentUnique(t *testing.T) {
	gen := NewSequence("c")
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}

func TestUUIDv7(t *testing.T) {
	var gen Generator = UUIDv7{}
	a := gen.Generate()
	b := gen.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, a, b)
}
