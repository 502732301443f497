package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"voltrewards/internal/models"
)

// CampaignRepository loads reward campaigns and owns the atomic budget counter.
type CampaignRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCampaignRepository returns repository.
func NewCampaignRepository(db *sql.DB, logger *zap.Logger) *CampaignRepository {
	return &CampaignRepository{db: db, logger: logger}
}

// ListActive returns campaigns whose window covers now, ordered by priority
// ascending with created_at then id as the deterministic tie-break. Campaigns
// failing configuration validation are skipped and logged, never evaluated.
func (r *CampaignRepository) ListActive(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	const query = `
		SELECT id, name, sponsor_id, budget_cents, spent_cents, cost_per_session_cents,
		       priority, starts_at, ends_at,
		       rule_min_duration_minutes, rule_max_duration_minutes,
		       rule_charger_ids, rule_networks, rule_zones,
		       rule_geo_lat, rule_geo_lng, rule_geo_radius_m,
		       rule_time_start, rule_time_end, rule_days_of_week,
		       rule_min_power_kw, rule_connector_types,
		       rule_min_driver_sessions, rule_max_driver_sessions,
		       rule_driver_ids, rule_driver_emails,
		       created_at, updated_at
		FROM campaigns
		WHERE starts_at <= $1 AND ends_at >= $1
		ORDER BY priority ASC, created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var c models.Campaign
		var minDuration sql.NullInt64
		var timeStart, timeEnd sql.NullString
		var chargerIDs, networks, zones, daysOfWeek, connectors, driverIDs, driverEmails []byte
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.SponsorID,
			&c.BudgetCents,
			&c.SpentCents,
			&c.CostPerSessionCents,
			&c.Priority,
			&c.StartsAt,
			&c.EndsAt,
			&minDuration,
			&c.MaxDurationMinutes,
			&chargerIDs,
			&networks,
			&zones,
			&c.GeoLatitude,
			&c.GeoLongitude,
			&c.GeoRadiusMeters,
			&timeStart,
			&timeEnd,
			&daysOfWeek,
			&c.MinPowerKW,
			&connectors,
			&c.MinDriverSessions,
			&c.MaxDriverSessions,
			&driverIDs,
			&driverEmails,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		c.MinDurationMinutes = int(minDuration.Int64)
		c.TimeStart = timeStart.String
		c.TimeEnd = timeEnd.String
		if err := decodeList(chargerIDs, &c.ChargerIDs); err != nil {
			return nil, err
		}
		if err := decodeList(networks, &c.Networks); err != nil {
			return nil, err
		}
		if err := decodeList(zones, &c.Zones); err != nil {
			return nil, err
		}
		if err := decodeList(daysOfWeek, &c.DaysOfWeek); err != nil {
			return nil, err
		}
		if err := decodeList(connectors, &c.ConnectorTypes); err != nil {
			return nil, err
		}
		if err := decodeList(driverIDs, &c.DriverIDs); err != nil {
			return nil, err
		}
		if err := decodeList(driverEmails, &c.DriverEmails); err != nil {
			return nil, err
		}

		if err := c.Validate(); err != nil {
			r.logger.Warn("skipping misconfigured campaign",
				zap.Int64("campaign_id", c.ID),
				zap.Error(err),
			)
			continue
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return campaigns, nil
}

// DecrementSpent increases spent_cents by amount only when the result stays
// within budget. A single conditional update, never read-then-write; false
// means insufficient remaining budget and no mutation.
func (r *CampaignRepository) DecrementSpent(ctx context.Context, campaignID, amountCents int64) (bool, error) {
	const query = `
		UPDATE campaigns
		SET spent_cents = spent_cents + $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND spent_cents + $2 <= budget_cents
	`
	result, err := r.db.ExecContext(ctx, query, campaignID, amountCents)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// decodeList unmarshals a JSONB array column, leaving the target nil for NULL
// or empty columns.
func decodeList[T any](raw []byte, target *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
