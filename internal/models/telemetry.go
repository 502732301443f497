package models

import "time"

// Telemetry sources.
const (
	SourceVehicleAPI = "vehicle_api"
	SourceChargerOCP = "charger"
	SourceMobileApp  = "mobile_app"
)

// Telemetry is one charging fix from a vehicle API, a charger feed or the app.
// Optional readings use pointers so an absent field leaves the session untouched.
type Telemetry struct {
	ChargerID     string    `json:"charger_id"`
	ConnectorType string    `json:"connector_type,omitempty"`
	PowerKW       *float64  `json:"power_kw,omitempty"`
	EnergyKWh     *float64  `json:"energy_kwh,omitempty"`
	BatteryPct    *float64  `json:"battery_pct,omitempty"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	Source        string    `json:"source,omitempty"`
	Verified      bool      `json:"verified"`
	Timestamp     time.Time `json:"timestamp"`
}
