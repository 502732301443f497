package models

import (
	"fmt"
	"time"
)

// Grant statuses.
const (
	GrantStatusIssued = "issued"
)

// IncentiveGrant is one reward issuance, tied 1:1 to a (campaign, session)
// pair through its idempotency key.
type IncentiveGrant struct {
	ID             int64     `db:"id" json:"id"`
	CampaignID     int64     `db:"campaign_id" json:"campaign_id"`
	SessionID      int64     `db:"session_id" json:"session_id"`
	DriverID       int64     `db:"driver_id" json:"driver_id"`
	AmountCents    int64     `db:"amount_cents" json:"amount_cents"`
	Status         string    `db:"status" json:"status"`
	TransactionID  int64     `db:"transaction_id" json:"transaction_id"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	GrantedAt      time.Time `db:"granted_at" json:"granted_at"`
}

// GrantIdempotencyKey derives the stable key for a (campaign, session) pair.
func GrantIdempotencyKey(campaignID, sessionID int64) string {
	return fmt.Sprintf("campaign:%d:session:%d", campaignID, sessionID)
}
