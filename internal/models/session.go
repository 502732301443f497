package models

import "time"

// Ended reasons reported by the charger or the app.
const (
	EndedReasonComplete     = "complete"
	EndedReasonUnplugged    = "unplugged"
	EndedReasonRemoteStop   = "remote_stop"
	EndedReasonTimeout      = "timeout"
	EndedReasonPowerLoss    = "power_loss"
	EndedReasonAppRequested = "app_requested"
)

// SessionEvent represents one charging session. Duration and quality score stay
// nil until the session is ended; at most one session with a nil EndTime exists
// per (driver, vehicle) pair.
type SessionEvent struct {
	ID              int64      `db:"id" json:"id"`
	DriverID        int64      `db:"driver_id" json:"driver_id"`
	VehicleID       string     `db:"vehicle_id" json:"vehicle_id,omitempty"`
	ChargerID       string     `db:"charger_id" json:"charger_id"`
	ChargerNetwork  string     `db:"charger_network" json:"charger_network,omitempty"`
	Zone            string     `db:"zone" json:"zone,omitempty"`
	ConnectorType   string     `db:"connector_type" json:"connector_type,omitempty"`
	PowerKW         *float64   `db:"power_kw" json:"power_kw,omitempty"`
	Latitude        *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude       *float64   `db:"longitude" json:"longitude,omitempty"`
	StartTime       time.Time  `db:"start_time" json:"start_time"`
	EndTime         *time.Time `db:"end_time" json:"end_time,omitempty"`
	DurationMinutes *int       `db:"duration_minutes" json:"duration_minutes,omitempty"`
	EnergyKWh       float64    `db:"energy_kwh" json:"energy_kwh"`
	BatteryStartPct *float64   `db:"battery_start_pct" json:"battery_start_pct,omitempty"`
	BatteryEndPct   *float64   `db:"battery_end_pct" json:"battery_end_pct,omitempty"`
	Source          string     `db:"source" json:"source,omitempty"`
	Verified        bool       `db:"verified" json:"verified"`
	EndedReason     string     `db:"ended_reason" json:"ended_reason,omitempty"`
	QualityScore    *int       `db:"quality_score" json:"quality_score,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Ended reports whether the session has been finalized.
func (s *SessionEvent) Ended() bool {
	return s.EndTime != nil
}

// HasLocation reports whether both coordinates are set.
func (s *SessionEvent) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}
