package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMemory(cfg MemoryConfig) *Memory {
	m := NewMemory(cfg, zap.NewNop())
	return m
}

func TestMemory_ConcurrentAdmissionsNeverExceedLimit(t *testing.T) {
	const limit = 25
	m := newTestMemory(MemoryConfig{})
	defer m.Stop()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < limit+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d, err := m.Allow(context.Background(), "tenant:a", limit, time.Minute)
			assert.NoError(t, err)
			if d.Allowed {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
}

func TestMemory_SlidingWindow(t *testing.T) {
	m := newTestMemory(MemoryConfig{})
	defer m.Stop()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	d := m.allowAt("k", 2, time.Minute, t0)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d = m.allowAt("k", 2, time.Minute, t0.Add(10*time.Second))
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d = m.allowAt("k", 2, time.Minute, t0.Add(30*time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter, "retry when the oldest hit leaves the window")

	// Exactly one window after the first hit, that hit no longer counts.
	d = m.allowAt("k", 2, time.Minute, t0.Add(time.Minute))
	assert.True(t, d.Allowed)
}

func TestMemory_RejectionIsNotRecorded(t *testing.T) {
	m := newTestMemory(MemoryConfig{})
	defer m.Stop()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, m.allowAt("k", 1, time.Minute, t0).Allowed)
	for i := 1; i <= 10; i++ {
		require.False(t, m.allowAt("k", 1, time.Minute, t0.Add(time.Duration(i)*time.Second)).Allowed)
	}

	// If rejections were recorded the key would still be saturated here.
	assert.True(t, m.allowAt("k", 1, time.Minute, t0.Add(61*time.Second)).Allowed)
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	m := newTestMemory(MemoryConfig{})
	defer m.Stop()
	now := time.Now()

	require.True(t, m.allowAt("tenant:a", 1, time.Minute, now).Allowed)
	assert.False(t, m.allowAt("tenant:a", 1, time.Minute, now).Allowed)
	assert.True(t, m.allowAt("tenant:b", 1, time.Minute, now).Allowed)
}

func TestMemory_SweepRemovesIdleKeys(t *testing.T) {
	m := newTestMemory(MemoryConfig{})
	defer m.Stop()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	m.allowAt("old", 5, time.Minute, t0)
	m.allowAt("fresh", 5, time.Minute, t0.Add(90*time.Second))

	removed := m.sweep(t0.Add(2 * time.Minute))

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_MaxKeysBound(t *testing.T) {
	m := newTestMemory(MemoryConfig{Shards: 1, MaxKeys: 10})
	defer m.Stop()
	now := time.Now()

	for i := 0; i < 100; i++ {
		m.allowAt(fmt.Sprintf("ip:10.0.0.%d", i), 5, time.Minute, now.Add(time.Duration(i)*time.Millisecond))
	}

	assert.LessOrEqual(t, m.Len(), 10)
}

func TestMemory_SweepLoopStops(t *testing.T) {
	m := newTestMemory(MemoryConfig{SweepInterval: 5 * time.Millisecond})
	m.allowAt("k", 1, time.Millisecond, time.Now().Add(-time.Second))

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop() // idempotent
}
