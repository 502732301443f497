package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"voltrewards/internal/models"
	"voltrewards/internal/repository"
)

type fakeBudget struct {
	budgetCents int64
	spentCents  int64
}

type fakeBudgetStore struct {
	mu        sync.Mutex
	campaigns map[int64]*fakeBudget
}

func newFakeBudgetStore() *fakeBudgetStore {
	return &fakeBudgetStore{campaigns: make(map[int64]*fakeBudget)}
}

func (f *fakeBudgetStore) set(campaignID, budget, spent int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[campaignID] = &fakeBudget{budgetCents: budget, spentCents: spent}
}

func (f *fakeBudgetStore) spent(campaignID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[campaignID].spentCents
}

// DecrementSpent mirrors the conditional UPDATE: check and mutate under one lock.
func (f *fakeBudgetStore) DecrementSpent(_ context.Context, campaignID, amountCents int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	if c.spentCents+amountCents > c.budgetCents {
		return false, nil
	}
	c.spentCents += amountCents
	return true, nil
}

type fakeLedgerStore struct {
	mu           sync.Mutex
	transactions map[string]*models.LedgerTransaction
	balances     map[int64]int64
	nextID       int64
	creditErr    error
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		transactions: make(map[string]*models.LedgerTransaction),
		balances:     make(map[int64]int64),
	}
}

func (f *fakeLedgerStore) GetByIdempotencyKey(_ context.Context, key string) (*models.LedgerTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[key]
	if !ok {
		return nil, nil
	}
	copied := *tx
	return &copied, nil
}

func (f *fakeLedgerStore) Credit(_ context.Context, tx *models.LedgerTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creditErr != nil {
		return f.creditErr
	}
	f.nextID++
	tx.ID = f.nextID
	tx.WalletID = tx.DriverID
	tx.CreatedAt = time.Now().UTC()
	copied := *tx
	f.transactions[tx.IdempotencyKey] = &copied
	f.balances[tx.DriverID] += tx.AmountCents
	return nil
}

func (f *fakeLedgerStore) GetWallet(_ context.Context, driverID int64) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[driverID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	return &models.Wallet{ID: driverID, DriverID: driverID, BalanceCents: balance}, nil
}

func (f *fakeLedgerStore) ListTransactions(_ context.Context, driverID int64, _ int) ([]models.LedgerTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LedgerTransaction
	for _, tx := range f.transactions {
		if tx.DriverID == driverID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func TestGrantToDriverIdempotent(t *testing.T) {
	budgets := newFakeBudgetStore()
	store := newFakeLedgerStore()
	ledger := NewRewardLedger(budgets, store, zap.NewNop())
	ctx := context.Background()

	input := GrantInput{
		DriverID:       7,
		AmountCents:    500,
		Type:           models.TransactionTypeCampaignReward,
		IdempotencyKey: "campaign:1:session:42",
	}

	first, err := ledger.GrantToDriver(ctx, input)
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	second, err := ledger.GrantToDriver(ctx, input)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same transaction, got %d and %d", first.ID, second.ID)
	}
	balance, err := ledger.WalletBalance(ctx, 7)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 500 {
		t.Fatalf("expected single credit of 500, balance is %d", balance)
	}
}

func TestGrantToDriverRequiresKey(t *testing.T) {
	ledger := NewRewardLedger(newFakeBudgetStore(), newFakeLedgerStore(), zap.NewNop())

	if _, err := ledger.GrantToDriver(context.Background(), GrantInput{DriverID: 7, AmountCents: 100}); err == nil {
		t.Fatal("expected error for missing idempotency key")
	}
}

func TestDecrementBudgetNeverOverspendsConcurrently(t *testing.T) {
	budgets := newFakeBudgetStore()
	budgets.set(1, 1000, 0)
	ledger := NewRewardLedger(budgets, newFakeLedgerStore(), zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.DecrementBudget(ctx, 1, 300)
			if err != nil {
				t.Errorf("decrement: %v", err)
				return
			}
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Fatalf("expected exactly 3 successful decrements, got %d", successes)
	}
	if spent := budgets.spent(1); spent != 900 {
		t.Fatalf("expected spent 900, got %d", spent)
	}
}

func TestDecrementBudgetRejectsNonPositiveAmount(t *testing.T) {
	ledger := NewRewardLedger(newFakeBudgetStore(), newFakeLedgerStore(), zap.NewNop())

	if _, err := ledger.DecrementBudget(context.Background(), 1, 0); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestWalletBalanceWithoutWallet(t *testing.T) {
	ledger := NewRewardLedger(newFakeBudgetStore(), newFakeLedgerStore(), zap.NewNop())

	balance, err := ledger.WalletBalance(context.Background(), 999)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance)
	}
}

func TestGrantToDriverPropagatesCreditFailure(t *testing.T) {
	store := newFakeLedgerStore()
	store.creditErr = errors.New("wallet store down")
	ledger := NewRewardLedger(newFakeBudgetStore(), store, zap.NewNop())

	_, err := ledger.GrantToDriver(context.Background(), GrantInput{
		DriverID:       7,
		AmountCents:    500,
		IdempotencyKey: "campaign:1:session:42",
	})
	if err == nil {
		t.Fatal("expected credit failure to surface")
	}
}
