package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLRU_RejectsBadCapacity(t *testing.T) {
	_, err := NewLRU[int](0, nil)
	assert.Error(t, err)

	_, err = NewLRU[int](-5, nil)
	assert.Error(t, err)
}

func TestLRU_SetGet(t *testing.T) {
	c, err := NewLRU[string](4, nil)
	require.NoError(t, err)

	updated := c.Set("a", "1")
	assert.False(t, updated)

	updated = c.Set("a", "2")
	assert.True(t, updated)

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRU_EvictsOldestAtCapacity(t *testing.T) {
	var evicted []string
	c, err := NewLRU[int](3, func(key string, _ int) {
		evicted = append(evicted, key)
	})
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes the oldest
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestLRU_BoundedUnderLoad(t *testing.T) {
	c, err := NewLRU[int](16, nil)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}

	assert.Equal(t, 16, c.Len())
	_, _, evictions := c.Stats()
	assert.Equal(t, uint64(1000-16), evictions)
}

func TestLRU_Delete(t *testing.T) {
	c, err := NewLRU[int](2, nil)
	require.NoError(t, err)

	c.Set("a", 1)
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 0, c.Len())
}
