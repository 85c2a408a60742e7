package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache[[]string](time.Minute, time.Minute)

	c.Set("k", []string{"a", "b"}, 0)
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache[int](time.Minute, time.Minute)
	c.Set("short", 1, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("short")
	assert.False(t, ok)
}

func TestMemoryCache_TypeMismatchIsMiss(t *testing.T) {
	c := NewMemoryCache[int](time.Minute, time.Minute)
	c.cache.Set("k", "not an int", 0)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestScopedKey(t *testing.T) {
	a := ScopedKey("p1", "claim", "grew 40%")
	b := ScopedKey("p2", "claim", "grew 40%")
	c := ScopedKey("p1", "paragraph", "grew 40%")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, ScopedKey("p1", "claim", "grew 40%"))
}
