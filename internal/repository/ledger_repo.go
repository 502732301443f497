package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"voltrewards/internal/models"
)

// ErrWalletNotFound indicates the driver has no wallet yet.
var ErrWalletNotFound = errors.New("wallet not found")

// LedgerRepository persists wallets and their append-only transactions. The
// ledger entry insert and the wallet balance update always happen in the same
// database transaction so the balance stays equal to the sum of entries.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository returns repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetByIdempotencyKey returns an existing ledger transaction or nil.
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.LedgerTransaction, error) {
	const query = `
		SELECT id, wallet_id, driver_id, amount_cents, type, session_id,
		       COALESCE(metadata, ''), idempotency_key, created_at
		FROM wallet_transactions
		WHERE idempotency_key = $1
	`
	var tx models.LedgerTransaction
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&tx.ID,
		&tx.WalletID,
		&tx.DriverID,
		&tx.AmountCents,
		&tx.Type,
		&tx.SessionID,
		&tx.Metadata,
		&tx.IdempotencyKey,
		&tx.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Credit inserts one signed ledger entry and moves the wallet balance in a
// single database transaction, creating the wallet on first use.
func (r *LedgerRepository) Credit(ctx context.Context, tx *models.LedgerTransaction) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer dbTx.Rollback()

	const walletQuery = `
		INSERT INTO wallets (driver_id, balance_cents, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (driver_id) DO UPDATE SET
			balance_cents = wallets.balance_cents + EXCLUDED.balance_cents,
			updated_at = NOW()
		RETURNING id
	`
	if err := dbTx.QueryRowContext(ctx, walletQuery, tx.DriverID, tx.AmountCents).Scan(&tx.WalletID); err != nil {
		return fmt.Errorf("ledger: update wallet: %w", err)
	}

	const entryQuery = `
		INSERT INTO wallet_transactions (wallet_id, driver_id, amount_cents, type,
			session_id, metadata, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW())
		RETURNING id, created_at
	`
	if err := dbTx.QueryRowContext(ctx, entryQuery,
		tx.WalletID,
		tx.DriverID,
		tx.AmountCents,
		tx.Type,
		tx.SessionID,
		tx.Metadata,
		tx.IdempotencyKey,
	).Scan(&tx.ID, &tx.CreatedAt); err != nil {
		return fmt.Errorf("ledger: insert entry: %w", err)
	}

	return dbTx.Commit()
}

// GetWallet returns the driver's wallet or ErrWalletNotFound.
func (r *LedgerRepository) GetWallet(ctx context.Context, driverID int64) (*models.Wallet, error) {
	const query = `
		SELECT id, driver_id, balance_cents, created_at, updated_at
		FROM wallets
		WHERE driver_id = $1
	`
	var w models.Wallet
	err := r.db.QueryRowContext(ctx, query, driverID).Scan(
		&w.ID,
		&w.DriverID,
		&w.BalanceCents,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListTransactions returns the driver's latest ledger entries.
func (r *LedgerRepository) ListTransactions(ctx context.Context, driverID int64, limit int) ([]models.LedgerTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, wallet_id, driver_id, amount_cents, type, session_id,
		       COALESCE(metadata, ''), idempotency_key, created_at
		FROM wallet_transactions
		WHERE driver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.LedgerTransaction
	for rows.Next() {
		var tx models.LedgerTransaction
		if err := rows.Scan(
			&tx.ID,
			&tx.WalletID,
			&tx.DriverID,
			&tx.AmountCents,
			&tx.Type,
			&tx.SessionID,
			&tx.Metadata,
			&tx.IdempotencyKey,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}
