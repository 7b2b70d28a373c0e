package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/schemagate/internal/models"
)

const tenantColumns = `shop, credits, brand_voice, is_onboarded, created_at, updated_at`

// TenantRepository provides data access for the tenants table. Every balance
// mutation is a single relative UPDATE so concurrent callers are serialized
// by PostgreSQL row locks, never by application code.
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetByShop returns the tenant for shop or sql.ErrNoRows.
func (r *TenantRepository) GetByShop(ctx context.Context, shop string) (*models.Tenant, error) {
	const q = `SELECT ` + tenantColumns + ` FROM tenants WHERE shop = $1`

	var t models.Tenant
	if err := r.db.GetContext(ctx, &t, q, shop); err != nil {
		return nil, err
	}
	return &t, nil
}

// EnsureExists provisions shop with defaultCredits when absent and returns
// the current row either way.
func (r *TenantRepository) EnsureExists(ctx context.Context, shop string, defaultCredits int) (*models.Tenant, error) {
	const ins = `INSERT INTO tenants (shop, credits) VALUES ($1, $2) ON CONFLICT (shop) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, ins, shop, defaultCredits); err != nil {
		return nil, err
	}
	return r.GetByShop(ctx, shop)
}

// Decrement subtracts amount only if the balance covers it and returns the
// new balance. sql.ErrNoRows means nothing was debited: either the tenant is
// absent or the balance is insufficient.
func (r *TenantRepository) Decrement(ctx context.Context, shop string, amount int) (int, error) {
	const q = `
		UPDATE tenants
		SET credits = credits - $2, updated_at = NOW()
		WHERE shop = $1 AND credits >= $2
		RETURNING credits`

	var balance int
	if err := r.db.QueryRowxContext(ctx, q, shop, amount).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Increment adds amount to the balance, provisioning the tenant with
// defaultCredits + amount when absent.
func (r *TenantRepository) Increment(ctx context.Context, shop string, amount, defaultCredits int) (int, error) {
	const q = `
		INSERT INTO tenants (shop, credits) VALUES ($1, $2::integer + $3::integer)
		ON CONFLICT (shop) DO UPDATE
		SET credits = tenants.credits + $3, updated_at = NOW()
		RETURNING credits`

	var balance int
	if err := r.db.QueryRowxContext(ctx, q, shop, defaultCredits, amount).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// SetOnboarded stores the brand voice and opens the tenant for processing.
func (r *TenantRepository) SetOnboarded(ctx context.Context, shop, brandVoice string, defaultCredits int) (*models.Tenant, error) {
	const q = `
		INSERT INTO tenants (shop, credits, brand_voice, is_onboarded) VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (shop) DO UPDATE
		SET brand_voice = EXCLUDED.brand_voice, is_onboarded = TRUE, updated_at = NOW()
		RETURNING ` + tenantColumns

	var t models.Tenant
	if err := r.db.QueryRowxContext(ctx, q, shop, defaultCredits, brandVoice).StructScan(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// IsNotFound reports whether err is the no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
