package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"voltrewards/internal/models"
	"voltrewards/internal/repository"
)

// BudgetStore owns the campaign spent counter. DecrementSpent must be a single
// conditional update so concurrent completions can never overspend a budget.
type BudgetStore interface {
	DecrementSpent(ctx context.Context, campaignID, amountCents int64) (bool, error)
}

// LedgerStore persists wallets and their append-only transactions.
type LedgerStore interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*models.LedgerTransaction, error)
	Credit(ctx context.Context, tx *models.LedgerTransaction) error
	GetWallet(ctx context.Context, driverID int64) (*models.Wallet, error)
	ListTransactions(ctx context.Context, driverID int64, limit int) ([]models.LedgerTransaction, error)
}

// GrantInput describes one wallet credit.
type GrantInput struct {
	DriverID       int64
	AmountCents    int64
	Type           string
	SessionID      *int64
	Metadata       string
	IdempotencyKey string
}

// RewardLedger issues reward currency: atomic budget decrements and idempotent
// wallet credits.
type RewardLedger struct {
	budgets BudgetStore
	ledger  LedgerStore
	logger  *zap.Logger
}

// NewRewardLedger builds the ledger service.
func NewRewardLedger(budgets BudgetStore, ledger LedgerStore, logger *zap.Logger) *RewardLedger {
	return &RewardLedger{budgets: budgets, ledger: ledger, logger: logger}
}

// DecrementBudget consumes campaign budget. Returns false without mutation
// when the remaining budget cannot cover the amount.
func (l *RewardLedger) DecrementBudget(ctx context.Context, campaignID, amountCents int64) (bool, error) {
	if amountCents <= 0 {
		return false, errors.New("ledger: amount must be positive")
	}
	return l.budgets.DecrementSpent(ctx, campaignID, amountCents)
}

// GrantToDriver credits a driver's wallet. A repeated call with the same
// idempotency key returns the original transaction and never double-credits.
func (l *RewardLedger) GrantToDriver(ctx context.Context, input GrantInput) (*models.LedgerTransaction, error) {
	if input.IdempotencyKey == "" {
		return nil, errors.New("ledger: idempotency key required")
	}
	if input.AmountCents == 0 {
		return nil, errors.New("ledger: amount must be non-zero")
	}

	existing, err := l.ledger.GetByIdempotencyKey(ctx, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	tx := &models.LedgerTransaction{
		DriverID:       input.DriverID,
		AmountCents:    input.AmountCents,
		Type:           input.Type,
		SessionID:      input.SessionID,
		Metadata:       input.Metadata,
		IdempotencyKey: input.IdempotencyKey,
	}
	if err := l.ledger.Credit(ctx, tx); err != nil {
		return nil, err
	}

	l.logger.Info("wallet credited",
		zap.Int64("driver_id", input.DriverID),
		zap.Int64("amount_cents", input.AmountCents),
		zap.String("type", input.Type),
		zap.String("idempotency_key", input.IdempotencyKey),
	)
	return tx, nil
}

// WalletBalance returns the driver's balance, zero when no wallet exists yet.
func (l *RewardLedger) WalletBalance(ctx context.Context, driverID int64) (int64, error) {
	wallet, err := l.ledger.GetWallet(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return wallet.BalanceCents, nil
}

// Transactions returns the driver's latest ledger entries.
func (l *RewardLedger) Transactions(ctx context.Context, driverID int64, limit int) ([]models.LedgerTransaction, error) {
	return l.ledger.ListTransactions(ctx, driverID, limit)
}
