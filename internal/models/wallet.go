package models

import "time"

// Transaction types recorded in the reward ledger.
const (
	TransactionTypeCampaignReward = "campaign_reward"
	TransactionTypeDirectGrant    = "direct_grant"
	TransactionTypeRedemption     = "redemption"
)

// Wallet aggregates a driver's reward balance. The balance is always the sum
// of the wallet's ledger transactions; nothing mutates it without inserting a
// corresponding ledger row.
type Wallet struct {
	ID           int64     `db:"id" json:"id"`
	DriverID     int64     `db:"driver_id" json:"driver_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerTransaction is an immutable signed-amount wallet entry keyed by an
// idempotency key.
type LedgerTransaction struct {
	ID             int64     `db:"id" json:"id"`
	WalletID       int64     `db:"wallet_id" json:"wallet_id"`
	DriverID       int64     `db:"driver_id" json:"driver_id"`
	AmountCents    int64     `db:"amount_cents" json:"amount_cents"`
	Type           string    `db:"type" json:"type"`
	SessionID      *int64    `db:"session_id" json:"session_id,omitempty"`
	Metadata       string    `db:"metadata" json:"metadata,omitempty"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
