// internal/guard/cache_test.go
package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock advances only when told to, so TTL behavior is deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTTLCacheAddCollapsesLiveEntries(t *testing.T) {
	clk := newFakeClock()
	cache := NewTTLCache(time.Minute, clk)

	assert.True(t, cache.Add("a"))
	assert.False(t, cache.Add("a"))
	assert.True(t, cache.Contains("a"))
	assert.True(t, cache.Add("b"), "distinct keys are independent")
}

func TestTTLCacheEntriesExpire(t *testing.T) {
	clk := newFakeClock()
	cache := NewTTLCache(time.Minute, clk)

	assert.True(t, cache.Add("a"))
	clk.Advance(time.Minute + time.Second)

	assert.False(t, cache.Contains("a"))
	assert.True(t, cache.Add("a"), "expired entry can be re-claimed")
}

func TestTTLCacheRemoveReleasesClaim(t *testing.T) {
	clk := newFakeClock()
	cache := NewTTLCache(time.Minute, clk)

	assert.True(t, cache.Add("a"))
	cache.Remove("a")
	assert.True(t, cache.Add("a"))
}

func TestTTLCacheSweepsExpiredOnAdd(t *testing.T) {
	clk := newFakeClock()
	cache := NewTTLCache(time.Minute, clk)

	for _, k := range []string{"a", "b", "c"} {
		cache.Add(k)
	}
	clk.Advance(2 * time.Minute)
	cache.Add("d")

	assert.Equal(t, 1, cache.Len())
}

func TestTTLCacheConcurrentAddsAdmitExactlyOne(t *testing.T) {
	clk := newFakeClock()
	cache := NewTTLCache(time.Minute, clk)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cache.Add("same-key") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}
