package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID   string
	Name string
}

func TestMemoryCacheIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	require.NoError(t, c.Set(ctx, "org-a", KindCategories, []entry{{ID: "1", Name: "Security"}}))
	require.NoError(t, c.Set(ctx, "org-b", KindCategories, []entry{{ID: "2", Name: "Network"}}))

	var got []entry
	ok, err := c.Get(ctx, "org-a", KindCategories, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Security", got[0].Name)

	require.NoError(t, c.InvalidateTenant(ctx, "org-a"))
	ok, err = c.Get(ctx, "org-a", KindCategories, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Get(ctx, "org-b", KindCategories, &got)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	value := []entry{{ID: "1", Name: "Security"}}
	require.NoError(t, c.Set(ctx, "org-a", KindCategories, value))
	value[0].Name = "mutated"

	var got []entry
	_, err := c.Get(ctx, "org-a", KindCategories, &got)
	require.NoError(t, err)
	assert.Equal(t, "Security", got[0].Name)
}
