package scope

import "sync"

// Context is the explicit handle the algebra is evaluated through. It
// carries the taint-extension dispatch table and activity counters.
// Tests and independent callers construct their own Context rather than
// reaching for a package-level singleton (spec.md §9 design note).
type Context struct {
	mu       sync.RWMutex
	taintFns map[*TaintTag]TaintMatchFunc
	stats    Stats
}

// NewContext returns an independent, empty Context.
func NewContext() *Context {
	return &Context{taintFns: map[*TaintTag]TaintMatchFunc{}}
}

// Stats returns the activity counters accumulated by this Context.
func (c *Context) Stats() *Stats { return &c.stats }

var defaultContext = NewContext()

// Default returns the package-level Context used by the free Constrain
// function. Isolated callers (tests, independent cluster contexts) should
// construct their own Context with NewContext instead.
func Default() *Context { return defaultContext }
