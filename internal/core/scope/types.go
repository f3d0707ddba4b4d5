// Package scope implements the closed Scope/Taint sum types and the
// Constrain meet operator: the lattice kernel described by the scheduler's
// scope constraint algebra. It is the "adt" analogue of this module — a
// sealed core evaluated by an explicit Context, with user extension going
// through opaque-tag registration tables rather than open subtyping.
package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/latticesched/scope/internal/proc"
)

// NodeUUID stably identifies a physical host across every worker running
// on it.
type NodeUUID = uuid.UUID

// Scope is the sealed lattice element. scopeNode is unexported so only
// the variants in this file can satisfy the interface; user extension
// happens through the builder's key-extension table and the taint
// registration table (see taint.go), not by adding new Scope variants.
type Scope interface {
	scopeNode()
	fmt.Stringer
}

// AnyScope is the lattice top: every processor matches.
type AnyScope struct{}

func (AnyScope) scopeNode()     {}
func (AnyScope) String() string { return "Any" }

// TaintScope narrows Inner to processors satisfying every taint in
// Taints. Evaluation of Taints is deferred until Inner (or, after
// further meets, the scope this TaintScope is meet with) resolves to an
// ExactScope.
type TaintScope struct {
	Inner  Scope
	Taints []Taint
}

func (TaintScope) scopeNode() {}
func (t TaintScope) String() string {
	parts := make([]string, len(t.Taints))
	for i, tt := range t.Taints {
		parts[i] = tt.String()
	}
	return fmt.Sprintf("Taint(%s, [%s])", t.Inner, strings.Join(parts, ", "))
}

// DefaultScope is the alias TaintScope(Any, {DefaultEnabledTaint}).
func DefaultScope() Scope {
	return TaintScope{Inner: AnyScope{}, Taints: []Taint{DefaultEnabledTaint{}}}
}

// UnionScope matches any processor matched by at least one child. Never
// empty, never contains an InvalidScope, never contains a duplicate (by
// Equal) child.
type UnionScope struct {
	Children []Scope
}

func (UnionScope) scopeNode() {}
func (u UnionScope) String() string {
	parts := make([]string, len(u.Children))
	for i, c := range u.Children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("Union(%s)", strings.Join(parts, ", "))
}

// NodeScope matches any processor on the named host.
type NodeScope struct {
	UUID NodeUUID
}

func (NodeScope) scopeNode()     {}
func (n NodeScope) String() string { return fmt.Sprintf("Node(%s)", n.UUID) }

// ProcessScope matches any processor on the named worker. Invariant:
// Parent.UUID must equal the registry's node_of(Worker).
type ProcessScope struct {
	Parent NodeScope
	Worker proc.WorkerID
}

func (ProcessScope) scopeNode()     {}
func (p ProcessScope) String() string { return fmt.Sprintf("Process(%d)", p.Worker) }

// ExactScope matches exactly the named processor. Invariants: Parent as
// for ProcessScope, plus Proc.Parent().Worker() == Parent.Worker (when
// Proc is not itself the worker's OSProc).
type ExactScope struct {
	Parent ProcessScope
	Proc   proc.Processor
}

func (ExactScope) scopeNode()     {}
func (e ExactScope) String() string { return fmt.Sprintf("Exact(%s)", e.Proc) }

// InvalidScope is the lattice bottom: the terminal result of a meet
// between two incompatible scopes. It carries both inputs for
// diagnostics and must never itself be fed back into Constrain.
type InvalidScope struct {
	Left, Right Scope
}

func (InvalidScope) scopeNode() {}
func (i InvalidScope) String() string {
	return fmt.Sprintf("Invalid(%s, %s)", i.Left, i.Right)
}

// UnknownScope stands in for a scope that arrived over the wire (see
// internal/wire) carrying a variant tag this process never registered.
// It is not itself InvalidScope — InvalidScope may never be a Constrain
// operand — but spec.md §6 requires it to behave as if it already were
// invalid against anything it is asked to meet, including AnyScope: a
// decode failure cannot be trusted to mean "matches everything".
type UnknownScope struct {
	WireTag uint8
}

func (UnknownScope) scopeNode() {}
func (u UnknownScope) String() string { return fmt.Sprintf("Unknown(wire-tag=%d)", u.WireTag) }

// IsInvalid reports whether s is the lattice bottom.
func IsInvalid(s Scope) bool {
	_, ok := s.(InvalidScope)
	return ok
}

// assertValid panics if s is InvalidScope. Feeding InvalidScope into
// Constrain is a caller bug: the scheduler should have dropped the
// candidate already, not asked the algebra to re-evaluate it.
func assertValid(s Scope) {
	if IsInvalid(s) {
		panic(fmt.Sprintf("scope: Constrain called with an InvalidScope operand: %s", s))
	}
}

// sortedStrings returns a sorted copy of ss, used wherever a
// hash or equality check needs a canonical, order-independent
// representative of a multiset.
func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}
