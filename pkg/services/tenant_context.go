package services

import (
	"context"

	"github.com/resortgenius/concierge-engine/pkg/database"
)

// ScopeRunner runs fn with a tenant-scoped database connection on ctx.
// An existing scope on ctx is reused; otherwise one is acquired for the
// tenant carried by ctx and released when fn returns.
type ScopeRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ ScopeRunner = (*database.TenantScopeProvider)(nil)
