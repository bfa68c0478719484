package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrLoad_SingleFlight(t *testing.T) {
	c := New[int](50 * time.Millisecond)
	var calls int32
	var wg sync.WaitGroup
	results := make([]int, 4)

	start := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			v, err := c.GetOrLoad("k", func() (int, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return 42, nil
			})
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestGetOrLoad_ExpiryReloads(t *testing.T) {
	c := New[int](10 * time.Millisecond)
	var calls int32

	load := func() (int, error) {
		n := atomic.AddInt32(&calls, 1)
		return int(n), nil
	}

	v1, err := c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 1, v2, "fresh entry should not reload")

	time.Sleep(20 * time.Millisecond)

	v3, err := c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v3, "expired entry should reload")
}

func TestGetOrLoad_FailurePropagatesAndDoesNotCache(t *testing.T) {
	c := New[int](time.Second)
	boom := errors.New("boom")

	_, err := c.GetOrLoad("k", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Size())

	v, err := c.GetOrLoad("k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrLoad_DistinctKeysLoadIndependently(t *testing.T) {
	c := New[int](time.Second)
	v1, _ := c.GetOrLoad("a", func() (int, error) { return 1, nil })
	v2, _ := c.GetOrLoad("b", func() (int, error) { return 2, nil })
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)
	assert.Equal(t, 2, c.Size())
}

func TestInvalidateAndClear(t *testing.T) {
	c := New[int](time.Second)
	_, _ = c.GetOrLoad("a", func() (int, error) { return 1, nil })
	_, _ = c.GetOrLoad("b", func() (int, error) { return 2, nil })
	c.Invalidate("a")
	assert.Equal(t, 1, c.Size())
	c.Clear()
	assert.Equal(t, 0, c.Size())
}
