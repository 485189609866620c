package repo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/sqlinline"
)

// CreditLedgerPG keeps balances in credit_balances and appends every
// movement to credit_ledger within the same transaction.
type CreditLedgerPG struct {
	db interface {
		infra.SQLExecutor
		infra.TxRunner
	}
}

func NewCreditLedger(db interface {
	infra.SQLExecutor
	infra.TxRunner
}) *CreditLedgerPG {
	return &CreditLedgerPG{db: db}
}

// TryDeduct removes amount from the balance when it is large enough.
func (l *CreditLedgerPG) TryDeduct(ctx context.Context, userID string, amount int) (bool, error) {
	if err := validateCreditArgs(userID, amount); err != nil {
		return false, err
	}
	if amount == 0 {
		return true, nil
	}
	deducted := false
	err := l.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		tag, err := tx.Exec(ctx, sqlinline.QDeductCredits, userID, amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		deducted = true
		_, err = tx.Exec(ctx, sqlinline.QInsertCreditEntry, userID, -amount, "job_charge")
		return err
	})
	if err != nil {
		return false, fmt.Errorf("deduct credits: %w", err)
	}
	return deducted, nil
}

// Grant adds amount to the balance, creating it when missing.
func (l *CreditLedgerPG) Grant(ctx context.Context, userID string, amount int) error {
	if err := validateCreditArgs(userID, amount); err != nil {
		return err
	}
	err := l.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QGrantCredits, userID, amount); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, sqlinline.QInsertCreditEntry, userID, amount, "grant")
		return err
	})
	if err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}
	return nil
}

// Balance returns the current balance; unknown users have zero.
func (l *CreditLedgerPG) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := l.db.QueryRow(ctx, sqlinline.QSelectCreditBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

// MemoryCreditLedger is an in-process ledger for tests and development.
type MemoryCreditLedger struct {
	mu       sync.Mutex
	balances map[string]int
}

func NewMemoryCreditLedger() *MemoryCreditLedger {
	return &MemoryCreditLedger{balances: make(map[string]int)}
}

func (l *MemoryCreditLedger) TryDeduct(ctx context.Context, userID string, amount int) (bool, error) {
	if err := validateCreditArgs(userID, amount); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return false, nil
	}
	l.balances[userID] -= amount
	return true, nil
}

func (l *MemoryCreditLedger) Grant(ctx context.Context, userID string, amount int) error {
	if err := validateCreditArgs(userID, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return nil
}

func (l *MemoryCreditLedger) Balance(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func validateCreditArgs(userID string, amount int) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", domain.ErrInvalidRequest)
	}
	return nil
}

var (
	_ domain.CreditLedger = (*CreditLedgerPG)(nil)
	_ domain.CreditLedger = (*MemoryCreditLedger)(nil)
)
