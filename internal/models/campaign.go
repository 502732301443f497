package models

import (
	"errors"
	"time"
)

// Campaign is a sponsor-funded, rule-gated, budget-limited reward program.
// Money fields are integer cents. Lower Priority means higher precedence.
// Every rule field except MinDurationMinutes is optional; an unset rule is
// no constraint.
type Campaign struct {
	ID                  int64     `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	SponsorID           int64     `db:"sponsor_id" json:"sponsor_id"`
	BudgetCents         int64     `db:"budget_cents" json:"budget_cents"`
	SpentCents          int64     `db:"spent_cents" json:"spent_cents"`
	CostPerSessionCents int64     `db:"cost_per_session_cents" json:"cost_per_session_cents"`
	Priority            int       `db:"priority" json:"priority"`
	StartsAt            time.Time `db:"starts_at" json:"starts_at"`
	EndsAt              time.Time `db:"ends_at" json:"ends_at"`

	MinDurationMinutes int        `db:"rule_min_duration_minutes" json:"rule_min_duration_minutes"`
	MaxDurationMinutes *int       `db:"rule_max_duration_minutes" json:"rule_max_duration_minutes,omitempty"`
	ChargerIDs         []string   `db:"rule_charger_ids" json:"rule_charger_ids,omitempty"`
	Networks           []string   `db:"rule_networks" json:"rule_networks,omitempty"`
	Zones              []string   `db:"rule_zones" json:"rule_zones,omitempty"`
	GeoLatitude        *float64   `db:"rule_geo_lat" json:"rule_geo_lat,omitempty"`
	GeoLongitude       *float64   `db:"rule_geo_lng" json:"rule_geo_lng,omitempty"`
	GeoRadiusMeters    *float64   `db:"rule_geo_radius_m" json:"rule_geo_radius_m,omitempty"`
	TimeStart          string     `db:"rule_time_start" json:"rule_time_start,omitempty"`
	TimeEnd            string     `db:"rule_time_end" json:"rule_time_end,omitempty"`
	DaysOfWeek         []int      `db:"rule_days_of_week" json:"rule_days_of_week,omitempty"`
	MinPowerKW         *float64   `db:"rule_min_power_kw" json:"rule_min_power_kw,omitempty"`
	ConnectorTypes     []string   `db:"rule_connector_types" json:"rule_connector_types,omitempty"`
	MinDriverSessions  *int       `db:"rule_min_driver_sessions" json:"rule_min_driver_sessions,omitempty"`
	MaxDriverSessions  *int       `db:"rule_max_driver_sessions" json:"rule_max_driver_sessions,omitempty"`
	DriverIDs          []int64    `db:"rule_driver_ids" json:"rule_driver_ids,omitempty"`
	DriverEmails       []string   `db:"rule_driver_emails" json:"rule_driver_emails,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ErrCampaignInvalid marks a campaign that fails configuration validation.
var ErrCampaignInvalid = errors.New("campaign invalid")

// Validate enforces configuration-time invariants. A campaign missing its
// minimum-duration rule is a configuration error, never an evaluation-time one.
func (c *Campaign) Validate() error {
	if c.MinDurationMinutes <= 0 {
		return errors.Join(ErrCampaignInvalid, errors.New("rule_min_duration_minutes is required"))
	}
	if c.CostPerSessionCents <= 0 {
		return errors.Join(ErrCampaignInvalid, errors.New("cost_per_session_cents must be positive"))
	}
	if c.BudgetCents < 0 || c.SpentCents < 0 || c.SpentCents > c.BudgetCents {
		return errors.Join(ErrCampaignInvalid, errors.New("spent exceeds budget"))
	}
	if (c.GeoLatitude != nil || c.GeoLongitude != nil || c.GeoRadiusMeters != nil) &&
		(c.GeoLatitude == nil || c.GeoLongitude == nil || c.GeoRadiusMeters == nil) {
		return errors.Join(ErrCampaignInvalid, errors.New("geo rule requires lat, lng and radius"))
	}
	if (c.TimeStart == "") != (c.TimeEnd == "") {
		return errors.Join(ErrCampaignInvalid, errors.New("time rule requires both start and end"))
	}
	return nil
}

// ActiveAt reports whether the campaign window covers the given instant.
func (c *Campaign) ActiveAt(now time.Time) bool {
	return !now.Before(c.StartsAt) && !now.After(c.EndsAt)
}

// RemainingCents returns the unspent budget.
func (c *Campaign) RemainingCents() int64 {
	return c.BudgetCents - c.SpentCents
}
