package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

const (
	bindSQL  = "SELECT set_config('app.current_org_id', $1, false)"
	resetSQL = "RESET app.current_org_id"

	// Upper bound for the RESET / destroy round trip on release. Release runs
	// after the request context may already be cancelled.
	releaseTimeout = 5 * time.Second
)

// Querier is what repositories run statements against.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sessionConn is a checked-out connection the guard can return or discard.
type sessionConn interface {
	Querier
	Release()
	destroy(ctx context.Context)
}

type connSource interface {
	acquire(ctx context.Context) (sessionConn, error)
}

// TenantScope wraps a connection bound to one tenant and ensures cleanup.
// The connection has app.current_org_id set for RLS policy evaluation.
type TenantScope struct {
	Conn   Querier
	Tenant tenant.ID

	conn  sessionConn
	db    *DB
	close sync.Once
}

// Close resets the tenant binding and releases the connection to the pool.
// This MUST be called to prevent tenant context from leaking to the next
// checkout. A connection that cannot be reset is destroyed instead.
func (s *TenantScope) Close() {
	if s == nil || s.conn == nil {
		return
	}
	s.close.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if _, err := s.conn.Exec(ctx, resetSQL); err != nil {
			s.conn.destroy(ctx)
			s.db.violation("reset", s.Tenant, err)
			return
		}
		s.conn.Release()
	})
}

// Acquire checks out a connection bound to the tenant carried by ctx, or to
// the empty "no tenant" value when ctx has none. The binding is applied
// before the connection is handed back, so no caller statement can run
// against a stale session. On bind failure the connection is destroyed and
// the error wraps apperrors.ErrIsolationViolation.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*TenantScope, error) {
	id := tenant.FromContext(ctx)

	conn, err := db.source.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, bindSQL, tenant.SessionValue(id)); err != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		conn.destroy(dctx)
		cancel()
		if ctx.Err() == nil {
			db.violation("bind", id, err)
		}
		return nil, fmt.Errorf("failed to bind tenant session: %w: %w", apperrors.ErrIsolationViolation, err)
	}

	return &TenantScope{Conn: conn, Tenant: id, conn: conn, db: db}, nil
}

// WithTenant acquires a connection bound to orgID regardless of ctx.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, orgID uuid.UUID) (*TenantScope, error) {
	return db.Acquire(tenant.WithTenant(ctx, orgID))
}

// WithoutTenant acquires a connection explicitly bound to "no tenant". Under
// the RLS policies such a session sees no tenant rows; it is meant for
// maintenance queries against non-tenant tables.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithoutTenant(ctx context.Context) (*TenantScope, error) {
	return db.Acquire(tenant.WithTenant(ctx, tenant.None))
}

func (db *DB) violation(stage string, id tenant.ID, err error) {
	db.logger.Error("Tenant isolation violation",
		zap.String("stage", stage),
		zap.String("org_id", tenant.PartitionKey(id)),
		zap.Error(err))
	if db.onViolation != nil {
		db.onViolation(stage)
	}
}
