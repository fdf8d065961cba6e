package modelregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(DefaultModels(), DefaultAliases())
	require.NoError(t, err)
	return r
}

func TestLookupResolvesDirectModel(t *testing.T) {
	r := newTestRegistry(t)
	m, err := r.Lookup("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", m.ID)
	assert.True(t, m.ToolsAllowed)
}

func TestLookupResolvesAlias(t *testing.T) {
	r := newTestRegistry(t)
	m, err := r.Lookup("sonnet")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-7-sonnet", m.ID)
}

func TestLookupUnknownModel(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Lookup("does-not-exist")
	assert.ErrorIs(t, err, ErrModelNotSupported)
}

func TestResolveAlias(t *testing.T) {
	r := newTestRegistry(t)
	target, ok := r.ResolveAlias("opus")
	assert.True(t, ok)
	assert.Equal(t, "claude-3-opus", target)

	_, ok = r.ResolveAlias("claude-3-opus")
	assert.False(t, ok)
}

func TestListCachesUntilInvalidated(t *testing.T) {
	r := newTestRegistry(t)

	first := r.List("default")
	assert.Len(t, first, len(DefaultModels()))

	r.Put(ExtModel{ID: "brand-new"})
	second := r.List("default")
	assert.Len(t, second, len(first), "cached list should not pick up the new model yet")

	r.Invalidate("default")
	third := r.List("default")
	assert.Len(t, third, len(first)+1)
}

func TestDefaultAliasesResolveToRegisteredModels(t *testing.T) {
	r := newTestRegistry(t)
	for alias, target := range DefaultAliases() {
		resolved, ok := r.ResolveAlias(alias)
		require.True(t, ok, alias)
		assert.Equal(t, target, resolved)
		_, err := r.Lookup(target)
		assert.NoError(t, err, target)
	}
}
