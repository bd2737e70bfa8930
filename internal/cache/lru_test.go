package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCacheWithClock[string](10, time.Minute, clock.now)
	c.Set("k", "v")
	c.Set("j", "w")

	clock.t = clock.t.Add(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.t = clock.t.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Zero(t, c.Size())

	s := c.Stats()
	assert.EqualValues(t, 1, s.Hits)
	assert.EqualValues(t, 1, s.Misses)
}

func TestLRUOverwriteAndDelete(t *testing.T) {
	c := NewLRUCache[int](0, time.Minute)
	c.Set("a", 1)
	c.Set("a", 2)
	v, _ := c.Get("a")
	assert.Equal(t, 2, v)

	c.Set("b", 3)
	assert.Equal(t, 1, c.Size(), "size floor is one")

	c.Delete("b")
	assert.Zero(t, c.Size())

	c.Set("x", 1)
	c.Purge()
	assert.Zero(t, c.Size())
}

func TestManagerSweepAndStop(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewLRUCacheWithClock[int](10, time.Second, clock.now)
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(time.Hour)
	m.StartCleanup(time.Hour)

	clock.t = clock.t.Add(2 * time.Second)
	assert.Equal(t, 1, m.Sweep())

	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	m.Stop()
}
