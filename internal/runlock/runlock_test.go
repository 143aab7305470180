package runlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireAndRelease(t *testing.T) {
	r := NewRegistry()

	ok, _ := r.TryAcquire("scrape")
	assert.True(t, ok)
	assert.True(t, r.Held("scrape"))

	ok, heldFor := r.TryAcquire("scrape")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, heldFor.Nanoseconds(), int64(0))

	// Other names are independent.
	ok, _ = r.TryAcquire("refresh")
	assert.True(t, ok)

	r.Release("scrape")
	assert.False(t, r.Held("scrape"))
	ok, _ = r.TryAcquire("scrape")
	assert.True(t, ok)
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Release("never-taken")
	assert.False(t, r.Held("never-taken"))
}

func TestTryAcquireConcurrent(t *testing.T) {
	r := NewRegistry()

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := r.TryAcquire("scrape"); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}
