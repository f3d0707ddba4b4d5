package wire

import (
	"testing"

	msgpack "gopkg.in/vmihailenco/msgpack.v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scopecore "github.com/latticesched/scope/internal/core/scope"
	"github.com/latticesched/scope/internal/proc"
)

var (
	testNode = mustUUID("77777777-7777-7777-7777-777777777777")
)

func mustUUID(s string) scopecore.NodeUUID {
	u, err := parseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

func roundTrip(t *testing.T, s scopecore.Scope) scopecore.Scope {
	t.Helper()
	data, err := Encode(s)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	return got
}

func TestRoundTripAnyScope(t *testing.T) {
	got := roundTrip(t, scopecore.AnyScope{})
	assert.True(t, scopecore.Equal(got, scopecore.AnyScope{}))
}

func TestRoundTripNodeScope(t *testing.T) {
	s := scopecore.NodeScope{UUID: testNode}
	got := roundTrip(t, s)
	assert.True(t, scopecore.Equal(got, s))
}

func TestRoundTripProcessScope(t *testing.T) {
	s := scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: testNode}, Worker: 1}
	got := roundTrip(t, s)
	assert.True(t, scopecore.Equal(got, s))
}

func TestRoundTripExactScopeOSProc(t *testing.T) {
	s := scopecore.ExactScope{
		Parent: scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: testNode}, Worker: 1},
		Proc:   proc.OSProc{WorkerID: 1},
	}
	got := roundTrip(t, s)
	assert.True(t, scopecore.Equal(got, s))
}

func TestRoundTripExactScopeThreadProc(t *testing.T) {
	s := scopecore.ExactScope{
		Parent: scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: testNode}, Worker: 1},
		Proc:   proc.ThreadProc{WorkerID: 1, TID: 4},
	}
	got := roundTrip(t, s)
	assert.True(t, scopecore.Equal(got, s))
}

func TestRoundTripUnionScope(t *testing.T) {
	s := scopecore.UnionScope{Children: []scopecore.Scope{
		scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: testNode}, Worker: 1},
		scopecore.ProcessScope{Parent: scopecore.NodeScope{UUID: testNode}, Worker: 2},
	}}
	got := roundTrip(t, s)
	assert.True(t, scopecore.Equal(got, s))
}

func TestRoundTripTaintScopeDefaultEnabled(t *testing.T) {
	s := scopecore.TaintScope{Inner: scopecore.AnyScope{}, Taints: []scopecore.Taint{scopecore.DefaultEnabledTaint{}}}
	got := roundTrip(t, s)
	assert.True(t, scopecore.Equal(got, s))
}

func TestRoundTripTaintScopeProcessorType(t *testing.T) {
	s := scopecore.TaintScope{
		Inner:  scopecore.AnyScope{},
		Taints: []scopecore.Taint{scopecore.ProcessorTypeTaint{VariantTag: proc.ThreadProcTag}},
	}
	got := roundTrip(t, s)
	assert.True(t, scopecore.Equal(got, s))
}

func TestDecodeUnrecognizedTagYieldsUnknownScope(t *testing.T) {
	data, err := msgpack.Marshal(wireScope{Tag: Tag(99)})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	u, ok := got.(scopecore.UnknownScope)
	require.True(t, ok)
	assert.Equal(t, uint8(99), u.WireTag)
}

func TestDecodeExactScopeWithUnknownProcessorVariantYieldsUnknownScope(t *testing.T) {
	data, err := msgpack.Marshal(wireScope{
		Tag:      TagExact,
		NodeUUID: testNode.String(),
		Worker:   1,
		Proc:     &wireProcessor{Variant: "no-such-variant", Payload: []byte{}},
	})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	_, ok := got.(scopecore.UnknownScope)
	assert.True(t, ok)
}

func TestUnknownScopeConflictsWithAnyAfterDecode(t *testing.T) {
	data, err := msgpack.Marshal(wireScope{Tag: Tag(250)})
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	assert.True(t, scopecore.IsInvalid(scopecore.Constrain(scopecore.AnyScope{}, got)))
}

func TestEncodeUnsupportedTaintVariantErrors(t *testing.T) {
	_, err := toWireTaint(struct{ scopecore.Taint }{})
	assert.Error(t, err)
}
