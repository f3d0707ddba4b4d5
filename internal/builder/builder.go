// Package builder parses the user-facing scope specification — positional
// or keyword form — into a canonical Scope tree, consulting the
// processor registry to validate worker/thread references and to
// enumerate per-worker thread children.
package builder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	scopecore "github.com/latticesched/scope/internal/core/scope"
	"github.com/latticesched/scope/internal/proc"
	"github.com/latticesched/scope/internal/registry"
)

// Sentinel construction errors (see SPEC_FULL.md §3.1). Callers use
// errors.Is against these; the returned error additionally wraps
// positional/key context via github.com/pkg/errors.
var (
	ErrUnknownWorker         = registry.ErrUnknownWorker
	ErrUnknownThread         = errors.New("builder: unknown (worker, thread) pair")
	ErrEmptyUnion            = errors.New("builder: scope specification produced zero scopes")
	ErrConflictingSpecifiers = errors.New("builder: two key handlers tie at the same precedence")
	ErrUnrecognizedKeys      = errors.New("builder: unrecognized scope keys with no registered handler")
	ErrMixedKeySpecifiers    = errors.New("builder: worker/thread keys cannot be combined with custom key specifiers")
)

// DefaultSymbol is the sentinel positional argument matching the source
// language's bare `default` identifier: scope(builder.Default) ==
// DefaultScope().
type DefaultSymbol struct{}

// Default is the single recognized DefaultSymbol value.
var Default = DefaultSymbol{}

// KeyHandler resolves an unrecognized key set into a Scope. It receives
// the complete Fields, not just the keys it registered for, per
// spec.md §4.4.
type KeyHandler func(fields Fields) (scopecore.Scope, error)

// Fields is the keyword-form scope specification.
type Fields struct {
	Worker  *proc.WorkerID
	Workers []proc.WorkerID
	Thread  *int
	Threads []int
	// Extra holds any key not in {worker, workers, thread, threads},
	// for dispatch through the registered key-extension table.
	Extra map[string]any
}

func (f Fields) hasWorkers() bool { return f.Worker != nil || len(f.Workers) > 0 }
func (f Fields) hasThreads() bool { return f.Thread != nil || len(f.Threads) > 0 }

func (f Fields) allWorkers() []proc.WorkerID {
	out := append([]proc.WorkerID(nil), f.Workers...)
	if f.Worker != nil {
		out = append(out, *f.Worker)
	}
	return out
}

func (f Fields) allThreads() []int {
	out := append([]int(nil), f.Threads...)
	if f.Thread != nil {
		out = append(out, *f.Thread)
	}
	return out
}

type keyExtension struct {
	key        string
	precedence int
	handler    KeyHandler
}

// Builder parses scope specifications against one Registry and one
// key-extension table. Independent Builders (as spec.md §9 recommends
// over a hidden singleton) see independent extensions.
type Builder struct {
	reg *registry.Registry

	mu         sync.RWMutex
	extensions map[string]keyExtension
}

// New returns a Builder backed by reg.
func New(reg *registry.Registry) *Builder {
	return &Builder{reg: reg, extensions: map[string]keyExtension{}}
}

// RegisterKey publishes a handler for a custom scope-spec key. Appends
// are append-only during normal operation (spec.md §5); registering the
// same key twice replaces the previous handler.
func (b *Builder) RegisterKey(key string, precedence int, handler KeyHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.extensions[key] = keyExtension{key: key, precedence: precedence, handler: handler}
}

// Positional implements the positional constructor scope(s1, ..., sn).
func (b *Builder) Positional(ctx context.Context, args ...any) (scopecore.Scope, error) {
	switch len(args) {
	case 0:
		return scopecore.AnyScope{}, nil
	case 1:
		if _, ok := args[0].(DefaultSymbol); ok {
			return scopecore.DefaultScope(), nil
		}
		return b.toScope(ctx, args[0])
	default:
		children := make([]scopecore.Scope, 0, len(args))
		var errs *multierror.Error
		for _, a := range args {
			s, err := b.toScope(ctx, a)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if !containsEqual(children, s) {
				children = append(children, s)
			}
		}
		if errs.ErrorOrNil() != nil {
			return nil, errs
		}
		if len(children) == 0 {
			return nil, ErrEmptyUnion
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return scopecore.UnionScope{Children: children}, nil
	}
}

// toScope converts one positional argument into a Scope: a Scope is
// passed through, a worker id resolves to that worker's ProcessScope.
func (b *Builder) toScope(ctx context.Context, arg any) (scopecore.Scope, error) {
	switch v := arg.(type) {
	case scopecore.Scope:
		return v, nil
	case proc.WorkerID:
		return b.processScope(v)
	case int:
		return b.processScope(proc.WorkerID(v))
	case int64:
		return b.processScope(proc.WorkerID(v))
	default:
		return nil, errors.Errorf("builder: unsupported positional argument of type %T", arg)
	}
}

// Keyword implements the keyword constructor scope(k1=v1, ...).
func (b *Builder) Keyword(ctx context.Context, fields Fields) (scopecore.Scope, error) {
	if !fields.hasWorkers() && !fields.hasThreads() && len(fields.Extra) == 0 {
		return scopecore.AnyScope{}, nil
	}

	if (fields.hasWorkers() || fields.hasThreads()) && len(fields.Extra) > 0 {
		return nil, ErrMixedKeySpecifiers
	}

	switch {
	case fields.hasWorkers() && fields.hasThreads():
		return b.workersAndThreads(ctx, fields.allWorkers(), fields.allThreads())
	case fields.hasWorkers():
		return b.workersOnly(fields.allWorkers())
	case fields.hasThreads():
		return b.threadsOnly(ctx, fields.allThreads())
	default:
		return b.dispatchExtension(fields)
	}
}

func (b *Builder) processScope(wid proc.WorkerID) (scopecore.Scope, error) {
	node, err := b.reg.NodeUUID(wid)
	if err != nil {
		return nil, err
	}
	return scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: node}, Worker: wid}, nil
}

func (b *Builder) exactScope(wid proc.WorkerID, p proc.Processor) (scopecore.Scope, error) {
	node, err := b.reg.NodeUUID(wid)
	if err != nil {
		return nil, err
	}
	return scopecore.ExactScope{
		Parent: scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: node}, Worker: wid},
		Proc:   p,
	}, nil
}

func (b *Builder) workersOnly(workers []proc.WorkerID) (scopecore.Scope, error) {
	var errs *multierror.Error
	var scopes []scopecore.Scope
	for _, w := range dedupWorkers(workers) {
		s, err := b.processScope(w)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		scopes = append(scopes, s)
	}
	if errs.ErrorOrNil() != nil {
		return nil, errs
	}
	return unionOrSingle(scopes)
}

// threadsOnly enumerates each known worker's own ThreadProc children
// independently and keeps those whose tid is requested (see DESIGN.md's
// resolution of spec.md §9's open question).
func (b *Builder) threadsOnly(ctx context.Context, tids []int) (scopecore.Scope, error) {
	wanted := map[int]bool{}
	for _, t := range tids {
		wanted[t] = true
	}

	var scopes []scopecore.Scope
	for _, wid := range b.reg.Workers() {
		kids, err := b.reg.Children(ctx, wid)
		if err != nil {
			return nil, err
		}
		for _, k := range kids {
			tp, ok := k.(proc.ThreadProc)
			if !ok || !wanted[tp.TID] {
				continue
			}
			s, err := b.exactScope(wid, tp)
			if err != nil {
				return nil, err
			}
			scopes = append(scopes, s)
		}
	}
	return unionOrSingle(scopes)
}

func (b *Builder) workersAndThreads(ctx context.Context, workers []proc.WorkerID, tids []int) (scopecore.Scope, error) {
	var errs *multierror.Error
	var scopes []scopecore.Scope
	for _, w := range dedupWorkers(workers) {
		kids, err := b.reg.Children(ctx, w)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for _, t := range dedupInts(tids) {
			tp := proc.ThreadProc{WorkerID: w, TID: t}
			known := false
			for _, k := range kids {
				known = known || k.Equal(tp)
			}
			if !known {
				errs = multierror.Append(errs, errors.Wrapf(ErrUnknownThread, "worker %d thread %d", w, t))
				continue
			}
			s, err := b.exactScope(w, tp)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			scopes = append(scopes, s)
		}
	}
	if errs.ErrorOrNil() != nil {
		return nil, errs
	}
	return unionOrSingle(scopes)
}

func (b *Builder) dispatchExtension(fields Fields) (scopecore.Scope, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var best *keyExtension
	tie := false
	for key := range fields.Extra {
		ext, ok := b.extensions[key]
		if !ok {
			continue
		}
		switch {
		case best == nil || ext.precedence > best.precedence:
			e := ext
			best = &e
			tie = false
		case ext.precedence == best.precedence && ext.key != best.key:
			tie = true
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedKeys, extraKeys(fields.Extra))
	}
	if tie {
		return nil, ErrConflictingSpecifiers
	}
	return best.handler(fields)
}

func unionOrSingle(scopes []scopecore.Scope) (scopecore.Scope, error) {
	deduped := make([]scopecore.Scope, 0, len(scopes))
	for _, s := range scopes {
		if !containsEqual(deduped, s) {
			deduped = append(deduped, s)
		}
	}
	if len(deduped) == 0 {
		return nil, ErrEmptyUnion
	}
	if len(deduped) == 1 {
		return deduped[0], nil
	}
	return scopecore.UnionScope{Children: deduped}, nil
}

func containsEqual(set []scopecore.Scope, s scopecore.Scope) bool {
	for _, e := range set {
		if scopecore.Equal(e, s) {
			return true
		}
	}
	return false
}

func dedupWorkers(ws []proc.WorkerID) []proc.WorkerID {
	seen := map[proc.WorkerID]bool{}
	var out []proc.WorkerID
	for _, w := range ws {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func dedupInts(xs []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

func extraKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
