package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

const defaultShards = 32

// Memory is a sharded LRU with per-entry TTL. Expired entries are dropped
// lazily when read or when they reach the LRU tail.
type Memory struct {
	shards []*memShard
	now    func() time.Time
}

var _ ResponseCache = (*Memory)(nil)

type memShard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, memEntry]
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// NewMemory creates a cache holding at most maxEntries values.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	shards := defaultShards
	if maxEntries < shards {
		shards = 1
	}
	perShard := (maxEntries + shards - 1) / shards

	m := &Memory{
		shards: make([]*memShard, shards),
		now:    time.Now,
	}
	for i := range m.shards {
		// Only errors on a non-positive size.
		l, _ := simplelru.NewLRU[string, memEntry](perShard, nil)
		m.shards[i] = &memShard{lru: l}
	}
	return m
}

func (m *Memory) Get(_ context.Context, orgID tenant.ID, query string) ([]byte, bool) {
	return m.Lookup(Key(orgID, query))
}

func (m *Memory) Put(_ context.Context, orgID tenant.ID, query string, value []byte, ttl time.Duration) {
	m.Store(Key(orgID, query), value, ttl)
}

// Lookup reads a raw key. Hits refresh recency but never the expiry. The
// returned slice is the caller's own copy.
func (m *Memory) Lookup(key string) ([]byte, bool) {
	s := m.shardFor(key)
	now := m.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !now.Before(e.expires) {
		s.lru.Remove(key)
		return nil, false
	}
	return append([]byte(nil), e.value...), true
}

// Store writes a raw key, replacing any previous value. The value is copied,
// so later mutation by the caller cannot leak into readers.
func (m *Memory) Store(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	entry := memEntry{
		value:   append([]byte(nil), value...),
		expires: m.now().Add(ttl),
	}

	s := m.shardFor(key)
	s.mu.Lock()
	s.lru.Add(key, entry)
	s.mu.Unlock()
}

// Len reports how many entries are held, including expired ones not yet dropped.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

func (m *Memory) shardFor(key string) *memShard {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}
