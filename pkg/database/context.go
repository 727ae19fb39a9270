package database

import (
	"context"

	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

type contextKey string

const (
	// TenantScopeKey is the context key for storing the tenant-scoped database connection.
	TenantScopeKey contextKey = "tenantScope"
)

// GetTenantScope retrieves the tenant-scoped database connection from context.
// Returns nil and false if not present.
func GetTenantScope(ctx context.Context) (*TenantScope, bool) {
	scope, ok := ctx.Value(TenantScopeKey).(*TenantScope)
	return scope, ok && scope != nil
}

// SetTenantScope stores the tenant-scoped database connection in context.
func SetTenantScope(ctx context.Context, scope *TenantScope) context.Context {
	return context.WithValue(ctx, TenantScopeKey, scope)
}

// TenantScopeProvider creates tenant-scoped contexts for database operations.
// Background work uses it to open a short-lived scope for one write.
type TenantScopeProvider struct {
	db *DB
}

// NewTenantScopeProvider creates a TenantScopeProvider for the given database.
func NewTenantScopeProvider(db *DB) *TenantScopeProvider {
	return &TenantScopeProvider{db: db}
}

// WithTenantScope returns a context carrying both the tenant and a scope bound
// to it. The cleanup function must be called when the scope is no longer needed.
func (p *TenantScopeProvider) WithTenantScope(ctx context.Context, orgID tenant.ID) (context.Context, func(), error) {
	scope, err := p.db.WithTenant(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	tenantCtx := SetTenantScope(tenant.WithTenant(ctx, orgID), scope)
	return tenantCtx, scope.Close, nil
}

// Run executes fn with a scope bound to the tenant in ctx. An existing scope
// on ctx is reused; otherwise one is opened for the duration of fn.
func (p *TenantScopeProvider) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := GetTenantScope(ctx); ok {
		return fn(ctx)
	}
	scope, err := p.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()
	return fn(SetTenantScope(ctx, scope))
}
