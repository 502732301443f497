package repository

import (
	"context"
	"database/sql"
	"errors"

	"voltrewards/internal/models"
)

// GrantRepository persists incentive grants.
type GrantRepository struct {
	db *sql.DB
}

// NewGrantRepository returns repository.
func NewGrantRepository(db *sql.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// GetBySession returns the grant already issued for a session, or nil.
func (r *GrantRepository) GetBySession(ctx context.Context, sessionID int64) (*models.IncentiveGrant, error) {
	const query = `
		SELECT id, campaign_id, session_id, driver_id, amount_cents, status,
		       transaction_id, idempotency_key, granted_at
		FROM incentive_grants
		WHERE session_id = $1
	`
	var g models.IncentiveGrant
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&g.ID,
		&g.CampaignID,
		&g.SessionID,
		&g.DriverID,
		&g.AmountCents,
		&g.Status,
		&g.TransactionID,
		&g.IdempotencyKey,
		&g.GrantedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts a grant. The unique idempotency key constraint makes a
// duplicate insert fail rather than double-grant.
func (r *GrantRepository) Create(ctx context.Context, g *models.IncentiveGrant) error {
	const query = `
		INSERT INTO incentive_grants (campaign_id, session_id, driver_id, amount_cents,
			status, transaction_id, idempotency_key, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, granted_at
	`
	return r.db.QueryRowContext(ctx, query,
		g.CampaignID,
		g.SessionID,
		g.DriverID,
		g.AmountCents,
		g.Status,
		g.TransactionID,
		g.IdempotencyKey,
	).Scan(&g.ID, &g.GrantedAt)
}

// ListByDriver returns the driver's latest grants.
func (r *GrantRepository) ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.IncentiveGrant, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, campaign_id, session_id, driver_id, amount_cents, status,
		       transaction_id, idempotency_key, granted_at
		FROM incentive_grants
		WHERE driver_id = $1
		ORDER BY granted_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []models.IncentiveGrant
	for rows.Next() {
		var g models.IncentiveGrant
		if err := rows.Scan(
			&g.ID,
			&g.CampaignID,
			&g.SessionID,
			&g.DriverID,
			&g.AmountCents,
			&g.Status,
			&g.TransactionID,
			&g.IdempotencyKey,
			&g.GrantedAt,
		); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
