package scope

import "go.uber.org/atomic"

// Stats counts algebra activity with lock-free counters, mirroring the
// teacher's ctx.stats.Unifications++ accounting but safe to bump from the
// concurrent readers the design note in spec.md §5 allows.
type Stats struct {
	Constrains atomic.Uint64
	Invalids   atomic.Uint64
	TaintEvals atomic.Uint64
}
