// Package ratelimit implements per-key sliding-window admission control.
//
// The default Memory limiter keeps one timestamp slice per key in a sharded
// table, so admissions for the same key are strictly ordered while different
// keys rarely contend. Redis provides the same semantics across processes.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

const defaultShards = 64

// MemoryConfig sizes the in-memory table.
type MemoryConfig struct {
	Shards        int
	MaxKeys       int
	SweepInterval time.Duration
}

// Memory is the single-process sliding-window limiter.
type Memory struct {
	shards      []*shard
	maxPerShard int
	now         func() time.Time
	logger      *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ Limiter = (*Memory)(nil)

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	hits   []time.Time // ascending
	length time.Duration
}

// NewMemory creates the limiter and starts its sweep loop when
// cfg.SweepInterval is positive. Call Stop to end the loop.
func NewMemory(cfg MemoryConfig, logger *zap.Logger) *Memory {
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 100_000
	}
	perShard := cfg.MaxKeys / cfg.Shards
	if perShard < 1 {
		perShard = 1
	}

	m := &Memory{
		shards:      make([]*shard, cfg.Shards),
		maxPerShard: perShard,
		now:         time.Now,
		logger:      logger.Named("ratelimit"),
		stopCh:      make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{windows: make(map[string]*window)}
	}

	if cfg.SweepInterval > 0 {
		go m.sweepLoop(cfg.SweepInterval)
	}
	return m
}

// Stop ends the background sweep.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Allow never blocks and never looks at ctx: the decision and the recorded
// timestamp happen under one shard lock with no suspension point in between.
func (m *Memory) Allow(_ context.Context, key string, limit int, length time.Duration) (Decision, error) {
	return m.allowAt(key, limit, length, m.now()), nil
}

func (m *Memory) allowAt(key string, limit int, length time.Duration, now time.Time) Decision {
	s := m.shardFor(key)
	cutoff := now.Add(-length)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		if len(s.windows) >= m.maxPerShard {
			s.evict(now)
		}
		w = &window{}
		s.windows[key] = w
	}
	w.length = length
	w.prune(cutoff)

	if len(w.hits) >= limit {
		retry := time.Second
		if len(w.hits) > 0 {
			retry = w.hits[0].Add(length).Sub(now)
		}
		return Decision{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: retry}
	}

	w.hits = append(w.hits, now)
	return Decision{Allowed: true, Limit: limit, Remaining: limit - len(w.hits)}
}

// Len reports how many keys are tracked.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

func (m *Memory) shardFor(key string) *shard {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// prune drops timestamps at or before cutoff.
func (w *window) prune(cutoff time.Time) {
	i := sort.Search(len(w.hits), func(i int) bool { return w.hits[i].After(cutoff) })
	if i == 0 {
		return
	}
	n := copy(w.hits, w.hits[i:])
	w.hits = w.hits[:n]
}

func (w *window) newest() time.Time {
	if len(w.hits) == 0 {
		return time.Time{}
	}
	return w.hits[len(w.hits)-1]
}

// evict makes room for one key: idle windows go first, then the least
// recently admitted key. Caller holds s.mu.
func (s *shard) evict(now time.Time) {
	var (
		lruKey  string
		lruTime time.Time
		removed bool
	)
	for k, w := range s.windows {
		newest := w.newest()
		if !newest.After(now.Add(-w.length)) {
			delete(s.windows, k)
			removed = true
			continue
		}
		if lruKey == "" || newest.Before(lruTime) {
			lruKey, lruTime = k, newest
		}
	}
	if !removed && lruKey != "" {
		delete(s.windows, lruKey)
	}
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.sweep(m.now()); n > 0 {
				m.logger.Debug("Swept idle rate limit keys", zap.Int("removed", n))
			}
		case <-m.stopCh:
			return
		}
	}
}

// sweep removes keys with no timestamps inside their window.
func (m *Memory) sweep(now time.Time) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, w := range s.windows {
			if !w.newest().After(now.Add(-w.length)) {
				delete(s.windows, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
