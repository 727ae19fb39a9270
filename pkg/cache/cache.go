// Package cache stores finished answers per tenant and normalized query.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

// ResponseCache is the tenant-partitioned answer cache. Implementations never
// fail the caller: backend errors surface as misses.
type ResponseCache interface {
	Get(ctx context.Context, orgID tenant.ID, query string) ([]byte, bool)
	Put(ctx context.Context, orgID tenant.ID, query string, value []byte, ttl time.Duration)
}

// keySeparator cannot appear in a tenant label, so ("a", "b c") and
// ("a b", "c") never hash alike.
const keySeparator = "\x00"

// Normalize trims, lowercases and collapses inner whitespace.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Key derives the cache key for a tenant's query. A missing tenant uses the
// public partition, so anonymous answers never mix with any tenant's.
func Key(orgID tenant.ID, query string) string {
	sum := sha256.Sum256([]byte(tenant.PartitionKey(orgID) + keySeparator + Normalize(query)))
	return hex.EncodeToString(sum[:])
}
