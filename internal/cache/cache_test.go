package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGet(t *testing.T) {
	c := New[string](4, time.Second)
	c.Set("a", "alpha", 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)
	assert.True(t, c.Has("a"))
}

func TestGetAfterTTLRemovesEntry(t *testing.T) {
	c := New[int](4, 50*time.Millisecond)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", 7, 0)

	c.now = func() time.Time { return base.Add(51 * time.Millisecond) }
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestEvictionIsInsertionOrder(t *testing.T) {
	c := New[int](2, time.Minute)
	c.Set("first", 1, 0)
	c.Set("second", 2, 0)

	// Touching "first" must not protect it: eviction is by insertion
	// order, not access order.
	_, ok := c.Get("first")
	require.True(t, ok)

	c.Set("third", 3, 0)
	_, ok = c.Get("first")
	assert.False(t, ok)
	assert.True(t, c.Has("second"))
	assert.True(t, c.Has("third"))
}

func TestOverwriteKeepsSize(t *testing.T) {
	c := New[int](2, time.Minute)
	c.Set("a", 1, 0)
	c.Set("a", 2, 0)
	assert.Equal(t, 1, c.Len())

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestDeleteAndClear(t *testing.T) {
	c := New[int](4, time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	c.Delete("a")
	assert.False(t, c.Has("a"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Has("b"))
}

func TestGetOrSet(t *testing.T) {
	c := New[string](4, time.Minute)
	calls := 0
	factory := func() (string, error) {
		calls++
		return "built", nil
	}

	v, err := c.GetOrSet("k", factory, 0)
	require.NoError(t, err)
	assert.Equal(t, "built", v)

	v, err = c.GetOrSet("k", factory, 0)
	require.NoError(t, err)
	assert.Equal(t, "built", v)
	assert.Equal(t, 1, calls)
}

func TestGetOrSetFactoryError(t *testing.T) {
	c := New[string](4, time.Minute)
	wantErr := errors.New("boom")
	_, err := c.GetOrSet("k", func() (string, error) { return "", wantErr }, 0)
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, c.Has("k"))
}
