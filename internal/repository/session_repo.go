package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voltrewards/internal/models"
)

// ErrSessionNotFound indicates a missing session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, driver_id, vehicle_id, charger_id, charger_network, zone, connector_type,
	power_kw, latitude, longitude, start_time, end_time, duration_minutes,
	energy_kwh, battery_start_pct, battery_end_pct, source, verified,
	ended_reason, quality_score, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*models.SessionEvent, error) {
	var s models.SessionEvent
	var vehicleID, network, zone, connector, source, endedReason sql.NullString
	err := row.Scan(
		&s.ID,
		&s.DriverID,
		&vehicleID,
		&s.ChargerID,
		&network,
		&zone,
		&connector,
		&s.PowerKW,
		&s.Latitude,
		&s.Longitude,
		&s.StartTime,
		&s.EndTime,
		&s.DurationMinutes,
		&s.EnergyKWh,
		&s.BatteryStartPct,
		&s.BatteryEndPct,
		&source,
		&s.Verified,
		&endedReason,
		&s.QualityScore,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.VehicleID = vehicleID.String
	s.ChargerNetwork = network.String
	s.Zone = zone.String
	s.ConnectorType = connector.String
	s.Source = source.String
	s.EndedReason = endedReason.String
	return &s, nil
}

// Create inserts a new session and fills the generated id and timestamps.
func (r *SessionRepository) Create(ctx context.Context, s *models.SessionEvent) error {
	const query = `
		INSERT INTO sessions (driver_id, vehicle_id, charger_id, charger_network, zone,
			connector_type, power_kw, latitude, longitude, start_time, energy_kwh,
			battery_start_pct, battery_end_pct, source, verified, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			$7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $15, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		s.DriverID,
		s.VehicleID,
		s.ChargerID,
		s.ChargerNetwork,
		s.Zone,
		s.ConnectorType,
		s.PowerKW,
		s.Latitude,
		s.Longitude,
		s.StartTime,
		s.EnergyKWh,
		s.BatteryStartPct,
		s.BatteryEndPct,
		s.Source,
		s.Verified,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a session or ErrSessionNotFound.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.SessionEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// FindActive returns the driver's session with a null end time, optionally
// scoped to a vehicle identifier. Returns ErrSessionNotFound when none exists.
func (r *SessionRepository) FindActive(ctx context.Context, driverID int64, vehicleID string) (*models.SessionEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE driver_id = $1
		  AND end_time IS NULL
		  AND ($2 = '' OR vehicle_id = $2)
		ORDER BY start_time DESC
		LIMIT 1
	`, sessionColumns)
	s, err := scanSession(r.db.QueryRowContext(ctx, query, driverID, vehicleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// UpdateTelemetry persists merged mutable fields of an active session.
func (r *SessionRepository) UpdateTelemetry(ctx context.Context, s *models.SessionEvent) error {
	const query = `
		UPDATE sessions
		SET energy_kwh = $2,
		    battery_end_pct = $3,
		    power_kw = $4,
		    latitude = COALESCE($5, latitude),
		    longitude = COALESCE($6, longitude),
		    updated_at = NOW()
		WHERE id = $1 AND end_time IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.EnergyKWh, s.BatteryEndPct, s.PowerKW, s.Latitude, s.Longitude)
	return err
}

// Finalize persists the end-of-session fields computed by the tracker.
func (r *SessionRepository) Finalize(ctx context.Context, s *models.SessionEvent) error {
	const query = `
		UPDATE sessions
		SET end_time = $2,
		    duration_minutes = $3,
		    energy_kwh = $4,
		    battery_end_pct = $5,
		    ended_reason = NULLIF($6, ''),
		    quality_score = $7,
		    updated_at = NOW()
		WHERE id = $1 AND end_time IS NULL
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.EndTime, s.DurationMinutes, s.EnergyKWh, s.BatteryEndPct, s.EndedReason, s.QualityScore)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CountCompleted counts the driver's sessions with a non-null end time,
// optionally filtered by charger.
func (r *SessionRepository) CountCompleted(ctx context.Context, driverID int64, chargerID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM sessions
		WHERE driver_id = $1
		  AND end_time IS NOT NULL
		  AND ($2 = '' OR charger_id = $2)
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, driverID, chargerID).Scan(&count)
	return count, err
}

// CountStartedSince counts sessions the driver started after the given instant.
func (r *SessionRepository) CountStartedSince(ctx context.Context, driverID int64, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions WHERE driver_id = $1 AND start_time >= $2`
	var count int
	err := r.db.QueryRowContext(ctx, query, driverID, since).Scan(&count)
	return count, err
}

// RecentVerifiedLocated returns the driver's most recent verified sessions that
// carry coordinates, newest first.
func (r *SessionRepository) RecentVerifiedLocated(ctx context.Context, driverID int64, limit int) ([]models.SessionEvent, error) {
	if limit <= 0 {
		limit = 2
	}
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE driver_id = $1
		  AND verified = TRUE
		  AND latitude IS NOT NULL
		  AND longitude IS NOT NULL
		ORDER BY start_time DESC
		LIMIT $2
	`, sessionColumns)
	rows, err := r.db.QueryContext(ctx, query, driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.SessionEvent
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListByDriver returns the driver's latest sessions.
func (r *SessionRepository) ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.SessionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE driver_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, sessionColumns)
	rows, err := r.db.QueryContext(ctx, query, driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.SessionEvent
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
