// Package identity mints the sequence-derived identifiers used by the
// pipeline: ingestion IDs, processor result IDs, DLQ IDs and replay IDs.
package identity

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Prefixes for minted identifiers.
const (
	PrefixIngestion = "ING"
	PrefixResult    = "PR"
	PrefixReplay    = "RPL"
)

// Generator mints "<prefix>-<yyyymmdd>-<n>" identifiers with a strictly
// increasing n. The counter is seeded from the wall clock in nanoseconds so
// a restarted process does not reissue identifiers.
type Generator struct {
	prefix  string
	counter atomic.Uint64
	now     func() time.Time
}

// NewGenerator returns a Generator seeded from the current time.
func NewGenerator(prefix string) *Generator {
	return NewGeneratorWithClock(prefix, uint64(time.Now().UnixNano()), time.Now)
}

// NewGeneratorWithClock returns a Generator starting after seed and using
// now for the day component.
func NewGeneratorWithClock(prefix string, seed uint64, now func() time.Time) *Generator {
	g := &Generator{prefix: prefix, now: now}
	g.counter.Store(seed)
	return g
}

// Next returns the next identifier.
func (g *Generator) Next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s-%s-%d", g.prefix, g.now().UTC().Format("20060102"), n)
}

// Sequence is a plain monotonic counter for per-process result IDs.
type Sequence struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequence returns a Sequence starting at 1.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next returns "<prefix>-<n>".
func (s *Sequence) Next() string {
	return fmt.Sprintf("%s-%d", s.prefix, s.counter.Add(1))
}

// NewDLQID returns a globally unique DLQ identifier.
func NewDLQID() string {
	return uuid.New().String()
}

// NewReplayID returns a unique identifier for one replay call.
func NewReplayID() string {
	return PrefixReplay + "-" + uuid.New().String()
}
