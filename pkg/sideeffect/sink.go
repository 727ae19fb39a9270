// Package sideeffect runs best-effort background writes off the request path.
//
// Tasks are fire-and-forget: Schedule never blocks, a full queue drops the
// task (logged and counted), and a task's error or panic is logged and
// discarded. Tasks sharing a key run one at a time in the order they were
// scheduled, so a session's user message is always written before its reply.
package sideeffect

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/logging"
	"github.com/resortgenius/concierge-engine/pkg/metrics"
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("side effect sink closed")

// Config sizes the sink.
type Config struct {
	Workers     int           // number of ordered lanes (default 4)
	QueueSize   int           // total buffered tasks across lanes (default 256)
	TaskTimeout time.Duration // per-task deadline (default 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 256, TaskTimeout: 10 * time.Second}
}

type job struct {
	ctx  context.Context
	name string
	fn   Task
}

// Sink is a bounded pool of ordered worker lanes.
type Sink struct {
	lanes   []chan job
	timeout time.Duration
	logger  *zap.Logger
	metrics metrics.Recorder

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	rr     atomic.Uint64
}

// New starts the worker lanes.
func New(cfg Config, logger *zap.Logger, rec metrics.Recorder) *Sink {
	def := DefaultConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if rec == nil {
		rec = metrics.Nop{}
	}

	perLane := cfg.QueueSize / cfg.Workers
	if perLane < 1 {
		perLane = 1
	}

	s := &Sink{
		lanes:   make([]chan job, cfg.Workers),
		timeout: cfg.TaskTimeout,
		logger:  logger.Named("side-effects"),
		metrics: rec,
	}
	for i := range s.lanes {
		s.lanes[i] = make(chan job, perLane)
		s.wg.Add(1)
		go s.work(s.lanes[i])
	}
	return s
}

// Schedule enqueues fn on the lane for key without blocking. ctx supplies
// values (tenant, trace) only; its cancellation is not inherited, so the task
// outlives the request that scheduled it. Returns false if the task was dropped.
func (s *Sink) Schedule(ctx context.Context, key, name string, fn Task) bool {
	j := job{ctx: context.WithoutCancel(ctx), name: name, fn: fn}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(name, key, "closed")
		return false
	}

	select {
	case s.lanes[s.laneFor(key)] <- j:
		return true
	default:
		s.drop(name, key, "queue_full")
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish or for
// ctx to expire.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	for _, lane := range s.lanes {
		close(lane)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("side effects not drained: %w", ctx.Err())
	}
}

func (s *Sink) laneFor(key string) int {
	if key == "" {
		return int(s.rr.Add(1) % uint64(len(s.lanes)))
	}
	return int(xxhash.Sum64String(key) % uint64(len(s.lanes)))
}

func (s *Sink) work(lane <-chan job) {
	defer s.wg.Done()
	for j := range lane {
		s.run(j)
	}
}

func (s *Sink) run(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordSideEffectFailed(j.name)
			s.logger.Error("Side effect panicked",
				zap.String("task", j.name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	if err := j.fn(ctx); err != nil {
		s.metrics.RecordSideEffectFailed(j.name)
		s.logger.Warn("Side effect failed",
			zap.String("task", j.name),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func (s *Sink) drop(name, key, reason string) {
	s.metrics.RecordSideEffectDropped(name)
	s.logger.Warn("Side effect dropped",
		zap.String("task", name),
		zap.String("key", key),
		zap.String("reason", reason))
}
