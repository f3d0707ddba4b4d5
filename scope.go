// Package scope is the public facade over this module's scope
// constraint algebra: the lattice of processor scopes a distributed
// task scheduler intersects before dispatching a thunk, mirroring how
// cuelang.org/go/cue is a thin public wrapper over
// cuelang.org/go/internal/core/adt.
//
// Most callers only need Constrain, New, and NewFromFields; the
// Register* functions and Context exist for the scheduler's extension
// points (custom processor variants, custom taints, custom scope-spec
// keys) and for tests that want an isolated cluster view instead of the
// package-level Default.
package scope

import (
	"context"

	"github.com/latticesched/scope/internal/builder"
	scopecore "github.com/latticesched/scope/internal/core/scope"
	"github.com/latticesched/scope/internal/proc"
	"github.com/latticesched/scope/internal/registry"
)

// Re-exported sealed scope variants. These are type aliases, not new
// types, so values built by internal/builder and internal/core/scope
// are usable directly as scope.Scope without conversion.
type (
	Scope        = scopecore.Scope
	AnyScope     = scopecore.AnyScope
	TaintScope   = scopecore.TaintScope
	UnionScope   = scopecore.UnionScope
	NodeScope    = scopecore.NodeScope
	ProcessScope = scopecore.ProcessScope
	ExactScope   = scopecore.ExactScope
	InvalidScope = scopecore.InvalidScope

	Taint               = scopecore.Taint
	DefaultEnabledTaint = scopecore.DefaultEnabledTaint
	ProcessorTypeTaint  = scopecore.ProcessorTypeTaint
	ExtTaint            = scopecore.ExtTaint
	TaintTag            = scopecore.TaintTag

	Processor = proc.Processor
	OSProc    = proc.OSProc
	ThreadProc = proc.ThreadProc
	ProcTag   = proc.Tag
	WorkerID  = proc.WorkerID
	NodeUUID  = scopecore.NodeUUID

	Fields         = builder.Fields
	KeyHandler     = builder.KeyHandler
	TaintMatchFunc = scopecore.TaintMatchFunc
)

// DefaultArg is the sentinel positional argument for New that requests
// DefaultScope(): New(scope.DefaultArg).
var DefaultArg = builder.Default

// IsInvalid reports whether s is the lattice bottom.
func IsInvalid(s Scope) bool { return scopecore.IsInvalid(s) }

// Equal reports structural equality, treating UnionScope children and
// TaintScope taints as order-free multisets.
func Equal(a, b Scope) bool { return scopecore.Equal(a, b) }

// Hash returns a hash consistent with Equal.
func Hash(s Scope) uint64 { return scopecore.Hash(s) }

// Context bundles one processor registry, one taint-extension table, and
// one scope-key-extension table behind a single explicit handle — the
// "no hidden singleton" design spec.md §9 asks for. Independent tests
// construct their own Context with New(...); Default() is the
// convenience instance non-isolated callers (like cmd/scopectl) use.
type Context struct {
	registry *registry.Registry
	core     *scopecore.Context
	builder  *builder.Builder
}

// New constructs an independent Context. fetcher may be nil (see
// registry.ChildrenFetcher).
func New(fetcher registry.ChildrenFetcher) *Context {
	reg := registry.New(fetcher)
	return &Context{
		registry: reg,
		core:     scopecore.NewContext(),
		builder:  builder.New(reg),
	}
}

var defaultCtx = New(nil)

// Default returns the package-level Context.
func Default() *Context { return defaultCtx }

// WorkerJoined records wid's node identity (and, optionally, an
// already-known children snapshot) with this Context's registry.
func (c *Context) WorkerJoined(wid WorkerID, node NodeUUID, children []Processor) {
	c.registry.WorkerJoined(wid, node, children)
}

// WorkerLeft drops wid from this Context's registry.
func (c *Context) WorkerLeft(wid WorkerID) {
	c.registry.WorkerLeft(wid)
}

// Workers returns current cluster membership.
func (c *Context) Workers() []WorkerID { return c.registry.Workers() }

// Constrain computes the lattice meet of x and y. See
// internal/core/scope.Constrain for the full rule set; this delegates to
// the Context's own taint-extension table so user-registered taints
// resolve correctly.
func (c *Context) Constrain(x, y Scope) Scope { return c.core.Constrain(x, y) }

// Stats exposes this Context's algebra activity counters.
func (c *Context) Stats() *scopecore.Stats { return c.core.Stats() }

// Constrain computes the lattice meet using the package-level Default
// context. Equivalent to Default().Constrain(x, y).
func Constrain(x, y Scope) Scope { return defaultCtx.Constrain(x, y) }

// NewScope builds a scope from the positional specification scope(s1, ..., sn)
// against this Context's registry (spec.md §4.4).
func (c *Context) NewScope(ctx context.Context, args ...any) (Scope, error) {
	return c.builder.Positional(ctx, args...)
}

// NewFromFields builds a scope from the keyword specification
// scope(k1=v1, ...) against this Context's registry (spec.md §4.4).
func (c *Context) NewFromFields(ctx context.Context, fields Fields) (Scope, error) {
	return c.builder.Keyword(ctx, fields)
}

// RegisterProcessorVariant allocates the opaque Tag for a user processor
// variant named name (spec.md §6's "Processor registration"). Built-in
// variants (osproc, threadproc) are registered by internal/proc's init.
func RegisterProcessorVariant(name string) *ProcTag {
	return proc.RegisterVariant(name)
}

// RegisterTaintVariant allocates the opaque TaintTag for a user taint
// variant named name.
func RegisterTaintVariant(name string) *TaintTag {
	return scopecore.RegisterTaintVariant(name)
}

// RegisterTaint publishes the matcher for a user taint variant on this
// Context (spec.md §6's "Taint registration").
func (c *Context) RegisterTaint(tag *TaintTag, fn TaintMatchFunc) {
	c.core.RegisterTaint(tag, fn)
}

// RegisterScopeKey publishes a handler for a custom scope-spec key on
// this Context (spec.md §6's "Scope-key extension"). precedence breaks
// ties between multiple handlers whose keys appear in the same
// specification; a tie at the unique maximum is a construction error.
func (c *Context) RegisterScopeKey(key string, precedence int, handler KeyHandler) {
	c.builder.RegisterKey(key, precedence, handler)
}
