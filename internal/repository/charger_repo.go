package repository

import (
	"context"
	"database/sql"
	"errors"

	"voltrewards/internal/models"
)

// ErrChargerNotFound indicates an unknown charger id.
var ErrChargerNotFound = errors.New("charger not found")

// ChargerRepository reads the charger directory used to enrich sessions.
type ChargerRepository struct {
	db *sql.DB
}

// NewChargerRepository returns repository.
func NewChargerRepository(db *sql.DB) *ChargerRepository {
	return &ChargerRepository{db: db}
}

// GetByID returns a charger or ErrChargerNotFound.
func (r *ChargerRepository) GetByID(ctx context.Context, id string) (*models.Charger, error) {
	const query = `
		SELECT id, network, zone, latitude, longitude, max_power_kw, created_at
		FROM chargers
		WHERE id = $1
	`
	var c models.Charger
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Network,
		&c.Zone,
		&c.Latitude,
		&c.Longitude,
		&c.MaxPowerKW,
		&c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChargerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
