package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/logging"
	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

// Redis stores answers under rag:response:<tenant>:<hash> with SETEX.
// Backend errors are logged and treated as misses.
type Redis struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ ResponseCache = (*Redis)(nil)

// NewRedis creates a Redis-backed response cache.
func NewRedis(client redis.UniversalClient, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger.Named("cache")}
}

func redisKey(orgID tenant.ID, query string) string {
	return "rag:response:" + tenant.PartitionKey(orgID) + ":" + Key(orgID, query)
}

func (r *Redis) Get(ctx context.Context, orgID tenant.ID, query string) ([]byte, bool) {
	val, err := r.client.Get(ctx, redisKey(orgID, query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("Cache read failed", zap.String("error", logging.SanitizeError(err)))
		return nil, false
	}
	return val, true
}

func (r *Redis) Put(ctx context.Context, orgID tenant.ID, query string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, redisKey(orgID, query), value, ttl).Err(); err != nil {
		r.logger.Warn("Cache write failed", zap.String("error", logging.SanitizeError(err)))
	}
}
