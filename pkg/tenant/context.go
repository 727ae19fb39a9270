// Package tenant carries the active tenant identity on a request's context.
//
// The tenant travels with context.Context rather than any ambient state, so a
// value set for one request is only visible to code that was handed that
// request's context (directly or through context.WithoutCancel for background
// work). Two concurrent requests can never observe each other's tenant.
//
// Example:
//
//	ctx = tenant.WithTenant(ctx, orgID)
//	...
//	id := tenant.FromContext(ctx) // orgID, or tenant.None if never set
package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
)

// ID identifies a tenant (an organization). The zero value is None.
type ID = uuid.UUID

// None is the "no tenant" state used by public routes and maintenance work.
// It is a valid state, not an error.
var None = uuid.Nil

// PublicPartition is the cache/partition label used in place of a missing tenant.
const PublicPartition = "public"

type contextKey string

const tenantKey contextKey = "tenant_id"

// WithTenant returns a child context carrying id. Passing None records an
// explicit "no tenant", which shadows any tenant set further up the chain.
func WithTenant(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, tenantKey, id)
}

// FromContext returns the tenant attached to ctx, or None when nothing was set.
// It never fails.
func FromContext(ctx context.Context) ID {
	if ctx == nil {
		return None
	}
	id, ok := ctx.Value(tenantKey).(ID)
	if !ok {
		return None
	}
	return id
}

// IsSet reports whether ctx carries a tenant other than None.
func IsSet(ctx context.Context) bool {
	return FromContext(ctx) != None
}

// Require returns the tenant in ctx or an error wrapping apperrors.ErrNoTenant.
func Require(ctx context.Context) (ID, error) {
	id := FromContext(ctx)
	if id == None {
		return None, fmt.Errorf("tenant required: %w", apperrors.ErrNoTenant)
	}
	return id, nil
}

// SessionValue is the string bound into the storage session for id.
// None maps to the empty string, which matches no row under the isolation policy.
func SessionValue(id ID) string {
	if id == None {
		return ""
	}
	return id.String()
}

// PartitionKey is the label used to partition in-memory state by tenant.
func PartitionKey(id ID) string {
	if id == None {
		return PublicPartition
	}
	return id.String()
}

// Parse parses a tenant id; the empty string yields None.
func Parse(s string) (ID, error) {
	if s == "" {
		return None, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return None, fmt.Errorf("invalid tenant id %q: %w", s, err)
	}
	return id, nil
}
