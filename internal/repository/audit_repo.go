package repository

import (
	"context"
	"database/sql"
	"time"

	"voltrewards/internal/models"
)

// AuditRepository persists append-only verify attempts and device fingerprints.
// Attempt rows are never mutated after insert; the risk scorer only counts them
// over rolling windows.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository returns repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// InsertVerifyAttempt appends one verification attempt, success or failure.
func (r *AuditRepository) InsertVerifyAttempt(ctx context.Context, a *models.VerifyAttempt) error {
	const query = `
		INSERT INTO verify_attempts (user_id, charger_id, ip_address, latitude, longitude, success, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		a.UserID,
		a.ChargerID,
		a.IPAddress,
		a.Latitude,
		a.Longitude,
		a.Success,
	).Scan(&a.ID, &a.CreatedAt)
}

// CountVerifyAttemptsSince counts the user's attempts after the given instant.
func (r *AuditRepository) CountVerifyAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM verify_attempts WHERE user_id = $1 AND created_at >= $2`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&count)
	return count, err
}

// CountDistinctIPsSince counts distinct source IPs used by the user's verify
// attempts after the given instant.
func (r *AuditRepository) CountDistinctIPsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT ip_address) FROM verify_attempts WHERE user_id = $1 AND created_at >= $2`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&count)
	return count, err
}

// UpsertFingerprint records a device fingerprint per (user, device), keeping
// first_seen_at from the first sighting and advancing last_seen_at.
func (r *AuditRepository) UpsertFingerprint(ctx context.Context, fp *models.DeviceFingerprint) error {
	const query = `
		INSERT INTO device_fingerprints (user_id, fingerprint, ip_address, user_agent, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW(), NOW())
		ON CONFLICT (user_id, fingerprint) DO UPDATE SET
			ip_address = EXCLUDED.ip_address,
			last_seen_at = NOW()
		RETURNING id, first_seen_at, last_seen_at
	`
	return r.db.QueryRowContext(ctx, query,
		fp.UserID,
		fp.Fingerprint,
		fp.IPAddress,
		fp.UserAgent,
	).Scan(&fp.ID, &fp.FirstSeenAt, &fp.LastSeenAt)
}

// ListFingerprints returns the user's known devices, most recently seen first.
func (r *AuditRepository) ListFingerprints(ctx context.Context, userID int64, limit int) ([]models.DeviceFingerprint, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT id, user_id, fingerprint, ip_address, COALESCE(user_agent, ''), first_seen_at, last_seen_at
		FROM device_fingerprints
		WHERE user_id = $1
		ORDER BY last_seen_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fps []models.DeviceFingerprint
	for rows.Next() {
		var fp models.DeviceFingerprint
		if err := rows.Scan(
			&fp.ID,
			&fp.UserID,
			&fp.Fingerprint,
			&fp.IPAddress,
			&fp.UserAgent,
			&fp.FirstSeenAt,
			&fp.LastSeenAt,
		); err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fps, nil
}
