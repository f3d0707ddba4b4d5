package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scopecore "github.com/latticesched/scope/internal/core/scope"
	"github.com/latticesched/scope/internal/proc"
	"github.com/latticesched/scope/internal/registry"
)

var (
	nodeA = uuid.MustParse("55555555-5555-5555-5555-555555555555")
	nodeB = uuid.MustParse("66666666-6666-6666-6666-666666666666")
)

var optOutTag = proc.RegisterVariant("builder-test-opt-out-proc")

// optOutProc stands in for spec.md §8's worker-2 processor with
// default_enabled hard-wired to false.
type optOutProc struct {
	WorkerID proc.WorkerID
}

func (p optOutProc) Tag() *proc.Tag         { return optOutTag }
func (p optOutProc) Worker() proc.WorkerID  { return p.WorkerID }
func (p optOutProc) Parent() proc.Processor { return proc.OSProc{WorkerID: p.WorkerID} }
func (p optOutProc) DefaultEnabled() bool   { return false }
func (p optOutProc) Equal(o proc.Processor) bool {
	other, ok := o.(optOutProc)
	return ok && other.WorkerID == p.WorkerID
}
func (p optOutProc) String() string { return "optout" }

// twoWorkerCluster builds spec.md §8's fixture: worker 1 on node A with
// threads {1,2}; worker 2 on node B with threads {1,2,3} plus an
// opted-out processor.
func twoWorkerCluster(t *testing.T) (*Builder, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil)
	reg.WorkerJoined(1, nodeA, []proc.Processor{
		proc.ThreadProc{WorkerID: 1, TID: 1},
		proc.ThreadProc{WorkerID: 1, TID: 2},
	})
	reg.WorkerJoined(2, nodeB, []proc.Processor{
		proc.ThreadProc{WorkerID: 2, TID: 1},
		proc.ThreadProc{WorkerID: 2, TID: 2},
		proc.ThreadProc{WorkerID: 2, TID: 3},
		optOutProc{WorkerID: 2},
	})
	return New(reg), reg
}

func exactThread(node uuid.UUID, w proc.WorkerID, tid int) scopecore.ExactScope {
	return scopecore.ExactScope{
		Parent: scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: node}, Worker: w},
		Proc:   proc.ThreadProc{WorkerID: w, TID: tid},
	}
}

func exactOptOut(node uuid.UUID, w proc.WorkerID) scopecore.ExactScope {
	return scopecore.ExactScope{
		Parent: scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: node}, Worker: w},
		Proc:   optOutProc{WorkerID: w},
	}
}

// Scenario 1: scope(worker=1) ⊓ scope(worker=2) → InvalidScope.
func TestScenarioDistinctWorkersConflict(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	ctx := context.Background()

	w1, err := b.Keyword(ctx, Fields{Worker: workerPtr(1)})
	require.NoError(t, err)
	w2, err := b.Keyword(ctx, Fields{Worker: workerPtr(2)})
	require.NoError(t, err)

	assert.True(t, scopecore.IsInvalid(scopecore.Constrain(w1, w2)))
}

// Scenario 2: scope(workers=[1,2], threads=[1]) → union of
// ExactScope(ThreadProc(1,1)) and ExactScope(ThreadProc(2,1)).
func TestScenarioWorkersAndThreadsCrossProduct(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	ctx := context.Background()

	result, err := b.Keyword(ctx, Fields{Workers: []proc.WorkerID{1, 2}, Threads: []int{1}})
	require.NoError(t, err)

	want := scopecore.UnionScope{Children: []scopecore.Scope{
		exactThread(nodeA, 1, 1),
		exactThread(nodeB, 2, 1),
	}}
	assert.True(t, scopecore.Equal(result, want), "got %s", result)
}

// Scenario 3: DefaultScope() ⊓ ExactScope(OptOutProc@2) → InvalidScope.
func TestScenarioDefaultScopeRejectsOptOutProcessor(t *testing.T) {
	optOut := exactOptOut(nodeB, 2)
	result := scopecore.Constrain(scopecore.DefaultScope(), optOut)
	assert.True(t, scopecore.IsInvalid(result))
}

// Scenario 4: ProcessorTypeScope(ThreadProc) ⊓ ExactScope(ThreadProc(1,2))
// → ExactScope(ThreadProc(1,2)).
func TestScenarioProcessorTypeScopeAcceptsMatchingVariant(t *testing.T) {
	typeScope := scopecore.TaintScope{
		Inner:  scopecore.AnyScope{},
		Taints: []scopecore.Taint{scopecore.ProcessorTypeTaint{VariantTag: proc.ThreadProcTag}},
	}
	thread := exactThread(nodeA, 1, 2)
	result := scopecore.Constrain(typeScope, thread)
	assert.True(t, scopecore.Equal(result, thread))
}

// Scenario 5: ProcessorTypeScope(ThreadProc) ⊓ ExactScope(OptOutProc@2)
// → InvalidScope.
func TestScenarioProcessorTypeScopeRejectsOtherVariant(t *testing.T) {
	typeScope := scopecore.TaintScope{
		Inner:  scopecore.AnyScope{},
		Taints: []scopecore.Taint{scopecore.ProcessorTypeTaint{VariantTag: proc.ThreadProcTag}},
	}
	optOut := exactOptOut(nodeB, 2)
	result := scopecore.Constrain(typeScope, optOut)
	assert.True(t, scopecore.IsInvalid(result))
}

// Scenario 6: scope() ⊓ scope(worker=1) → ProcessScope(1).
func TestScenarioEmptyScopeConstrainWorkerNarrows(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	ctx := context.Background()

	anyScope, err := b.Positional(ctx)
	require.NoError(t, err)
	w1, err := b.Keyword(ctx, Fields{Worker: workerPtr(1)})
	require.NoError(t, err)

	result := scopecore.Constrain(anyScope, w1)
	assert.True(t, scopecore.Equal(result, w1))
	_, isProcessScope := result.(scopecore.ProcessScope)
	assert.True(t, isProcessScope)
}

func TestPositionalEmptyIsAnyScope(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	s, err := b.Positional(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scopecore.AnyScope{}, s)
}

func TestPositionalDefaultSymbol(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	s, err := b.Positional(context.Background(), Default)
	require.NoError(t, err)
	assert.True(t, scopecore.Equal(s, scopecore.DefaultScope()))
}

func TestPositionalMultipleWorkersUnion(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	s, err := b.Positional(context.Background(), proc.WorkerID(1), proc.WorkerID(2))
	require.NoError(t, err)
	u, ok := s.(scopecore.UnionScope)
	require.True(t, ok)
	assert.Len(t, u.Children, 2)
}

func TestPositionalDedupsEqualScopes(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	s, err := b.Positional(context.Background(), proc.WorkerID(1), proc.WorkerID(1))
	require.NoError(t, err)
	_, isUnion := s.(scopecore.UnionScope)
	assert.False(t, isUnion, "duplicate positional arguments must collapse, not form a union")
}

func TestPositionalUnknownWorkerErrors(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	_, err := b.Positional(context.Background(), proc.WorkerID(99))
	assert.True(t, errors.Is(err, ErrUnknownWorker))
}

func TestKeywordEmptyFieldsIsAnyScope(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	s, err := b.Keyword(context.Background(), Fields{})
	require.NoError(t, err)
	assert.Equal(t, scopecore.AnyScope{}, s)
}

func TestKeywordThreadsOnlyEnumeratesEachWorkerIndependently(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	s, err := b.Keyword(context.Background(), Fields{Threads: []int{3}})
	require.NoError(t, err)
	// only worker 2 has a tid-3 thread; worker 1 does not, and per the
	// independent-enumeration resolution that's not an error, it's just
	// absent from the result.
	assert.True(t, scopecore.Equal(s, exactThread(nodeB, 2, 3)))
}

func TestKeywordMixingRecognizedAndExtraKeysErrors(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	_, err := b.Keyword(context.Background(), Fields{
		Worker: workerPtr(1),
		Extra:  map[string]any{"region": "us-west"},
	})
	assert.True(t, errors.Is(err, ErrMixedKeySpecifiers))
}

func TestKeywordUnrecognizedKeyWithNoHandlerErrors(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	_, err := b.Keyword(context.Background(), Fields{Extra: map[string]any{"region": "us-west"}})
	assert.True(t, errors.Is(err, ErrUnrecognizedKeys))
}

func TestKeywordDispatchesToRegisteredHandler(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	called := false
	b.RegisterKey("region", 10, func(fields Fields) (scopecore.Scope, error) {
		called = true
		return scopecore.AnyScope{}, nil
	})

	s, err := b.Keyword(context.Background(), Fields{Extra: map[string]any{"region": "us-west"}})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, scopecore.AnyScope{}, s)
}

func TestKeywordHigherPrecedenceHandlerWins(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	var winner string
	b.RegisterKey("low", 1, func(fields Fields) (scopecore.Scope, error) {
		winner = "low"
		return scopecore.AnyScope{}, nil
	})
	b.RegisterKey("high", 5, func(fields Fields) (scopecore.Scope, error) {
		winner = "high"
		return scopecore.AnyScope{}, nil
	})

	_, err := b.Keyword(context.Background(), Fields{Extra: map[string]any{"low": 1, "high": 2}})
	require.NoError(t, err)
	assert.Equal(t, "high", winner)
}

func TestKeywordTiedPrecedenceHandlersConflict(t *testing.T) {
	b, _ := twoWorkerCluster(t)
	b.RegisterKey("a", 5, func(fields Fields) (scopecore.Scope, error) { return scopecore.AnyScope{}, nil })
	b.RegisterKey("b", 5, func(fields Fields) (scopecore.Scope, error) { return scopecore.AnyScope{}, nil })

	_, err := b.Keyword(context.Background(), Fields{Extra: map[string]any{"a": 1, "b": 2}})
	assert.True(t, errors.Is(err, ErrConflictingSpecifiers))
}

func workerPtr(w proc.WorkerID) *proc.WorkerID { return &w }
