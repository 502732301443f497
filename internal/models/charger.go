package models

import "time"

// Charger describes a known charging point used to enrich sessions with
// network, zone and location at creation time.
type Charger struct {
	ID        string    `db:"id" json:"id"`
	Network   string    `db:"network" json:"network"`
	Zone      string    `db:"zone" json:"zone"`
	Latitude  float64   `db:"latitude" json:"latitude"`
	Longitude float64   `db:"longitude" json:"longitude"`
	MaxPowerKW float64  `db:"max_power_kw" json:"max_power_kw"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
