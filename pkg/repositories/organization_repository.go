package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
	"github.com/resortgenius/concierge-engine/pkg/database"
	"github.com/resortgenius/concierge-engine/pkg/models"
)

// OrganizationRepository reads the current tenant's organization row.
type OrganizationRepository interface {
	// Current returns the organization bound to the scope in ctx.
	Current(ctx context.Context) (*models.Organization, error)
}

type organizationRepository struct{}

// NewOrganizationRepository creates a new OrganizationRepository.
func NewOrganizationRepository() OrganizationRepository {
	return &organizationRepository{}
}

var _ OrganizationRepository = (*organizationRepository)(nil)

func (r *organizationRepository) Current(ctx context.Context) (*models.Organization, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, errNoTenantScope
	}

	query := `
		SELECT org_id, name, plan, COALESCE(property_name, ''), latitude, longitude, created_at
		FROM organizations
		WHERE org_id = $1`

	o := &models.Organization{}
	err := scope.Conn.QueryRow(ctx, query, scope.Tenant).Scan(
		&o.ID, &o.Name, &o.Plan, &o.PropertyName, &o.Latitude, &o.Longitude, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", scope.Tenant, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}
