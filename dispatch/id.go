package dispatch

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator issues job ids, replacing the source's static
// disambiguation field (spec.md §9's "global mutable state" redesign
// note) with a per-service atomic counter. The counter alone repeats
// across restarts, so it is namespaced under a uuid minted once at
// process start.
type IDGenerator struct {
	prefix string
	next   atomic.Uint64
}

// NewIDGenerator seeds a generator under a fresh random prefix, unique
// to this process.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{prefix: uuid.NewString()}
}

// NewIDGeneratorWithPrefix seeds a generator under an explicit prefix,
// for deterministic tests.
func NewIDGeneratorWithPrefix(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

// NewID returns the next id: monotonically increasing within this
// generator, guarded by a single atomic add (no lock needed).
func (g *IDGenerator) NewID() string {
	n := g.next.Add(1)
	return fmt.Sprintf("%s-%d", g.prefix, n)
}
