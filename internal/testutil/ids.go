package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates statement IDs from a monotonic counter.
//
// Unlike the compiler's default UUIDv7 generator, SequentialIDs produces the
// same IDs on every run, so explain output and scenario snapshots that
// include statement IDs stay byte-identical. It can be reset for reuse.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDs creates a generator whose first ID is "<prefix>-1".
// An empty prefix defaults to "stmt".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "stmt"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Current returns the number of IDs generated so far.
func (g *SequentialIDs) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next ID is "<prefix>-1" again.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// FixedID generates the same ID every time.
//
// Thread-safety: FixedID is stateless and safe for concurrent use.
type FixedID string

// Generate returns the fixed ID, or "test-stmt" when it is empty.
func (id FixedID) Generate() string {
	if id == "" {
		return "test-stmt"
	}
	return string(id)
}
