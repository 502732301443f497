package models

import "time"

// VerifyAttempt records one location-verification attempt. Rows are append-only
// and feed the risk scorer's rolling-window counts.
type VerifyAttempt struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ChargerID string    `db:"charger_id" json:"charger_id,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	Latitude  *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64  `db:"longitude" json:"longitude,omitempty"`
	Success   bool      `db:"success" json:"success"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DeviceFingerprint is a per-(user, device) record upserted on every verify
// attempt. It is collaborator data for policy layers, not part of the score.
type DeviceFingerprint struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	UserAgent   string    `db:"user_agent" json:"user_agent,omitempty"`
	FirstSeenAt time.Time `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt  time.Time `db:"last_seen_at" json:"last_seen_at"`
}
