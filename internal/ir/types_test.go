package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForSection(t *testing.T) {
	for _, k := range Kinds {
		t.Run(k.String(), func(t *testing.T) {
			got, ok := KindForSection(k.Section())
			require.True(t, ok)
			assert.Equal(t, k, got)
		})
	}

	_, ok := KindForSection("Scenes")
	assert.False(t, ok)
	_, ok = KindForSection("action sets")
	assert.False(t, ok, "section tokens are case sensitive")
}

func TestRecordKinds(t *testing.T) {
	records := []Record{
		LoadBinding{},
		EventBinding{},
		ActionSet{},
		StateAction{},
		StateTransition{},
		EventSet{},
	}
	require.Len(t, records, len(Kinds))
	for i, r := range records {
		assert.Equal(t, Kinds[i], r.Kind())
	}
}

func TestParseLoadKind(t *testing.T) {
	k, ok := ParseLoadKind("Relay")
	require.True(t, ok)
	assert.Equal(t, LoadRelay, k)
	assert.Equal(t, "Relay", k.String())

	_, ok = ParseLoadKind("Dimmer")
	assert.False(t, ok)
	_, ok = ParseLoadKind("relay")
	assert.False(t, ok)
}

func TestFilterOpValid(t *testing.T) {
	for _, op := range []FilterOp{AnyByte, Equal, NotEqual, LessOrEqual, GreaterOrEqual} {
		assert.True(t, op.Valid(), "op %s", op)
	}
	for _, op := range []FilterOp{'=', 'X', '!', 0} {
		assert.False(t, op.Valid(), "op %q", byte(op))
	}
}
