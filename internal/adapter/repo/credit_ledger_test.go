package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/sqlinline"
)

type execCall struct {
	query string
	args  []any
}

type stubDB struct {
	rowsAffected int64
	balance      *int
	calls        []execCall
	committed    bool
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{query: query, args: args})
	if query == sqlinline.QDeductCredits {
		if s.rowsAffected > 0 {
			return pgconn.NewCommandTag("UPDATE 1"), nil
		}
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return balanceRow{balance: s.balance}
}

func (s *stubDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDB) InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error {
	if err := fn(s); err != nil {
		return err
	}
	s.committed = true
	return nil
}

type balanceRow struct {
	balance *int
}

func (r balanceRow) Scan(dest ...any) error {
	if r.balance == nil {
		return pgx.ErrNoRows
	}
	*(dest[0].(*int)) = *r.balance
	return nil
}

func TestCreditLedgerPGTryDeduct(t *testing.T) {
	db := &stubDB{rowsAffected: 1}
	ledger := NewCreditLedger(db)

	ok, err := ledger.TryDeduct(context.Background(), "u1", 10)
	if err != nil || !ok {
		t.Fatalf("TryDeduct = %v, %v", ok, err)
	}
	if len(db.calls) != 2 || db.calls[1].query != sqlinline.QInsertCreditEntry {
		t.Fatalf("expected deduct + ledger entry, got %d calls", len(db.calls))
	}
	if delta, _ := db.calls[1].args[1].(int); delta != -10 {
		t.Fatalf("ledger delta = %v", db.calls[1].args[1])
	}
}

func TestCreditLedgerPGInsufficientBalance(t *testing.T) {
	db := &stubDB{rowsAffected: 0}
	ledger := NewCreditLedger(db)

	ok, err := ledger.TryDeduct(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("TryDeduct error: %v", err)
	}
	if ok {
		t.Fatalf("expected deduction to be refused")
	}
	if len(db.calls) != 1 {
		t.Fatalf("ledger entry written for refused deduction")
	}
}

func TestCreditLedgerPGBalanceUnknownUser(t *testing.T) {
	ledger := NewCreditLedger(&stubDB{})
	balance, err := ledger.Balance(context.Background(), "nobody")
	if err != nil || balance != 0 {
		t.Fatalf("Balance = %d, %v", balance, err)
	}
}

func TestMemoryCreditLedger(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryCreditLedger()
	if err := ledger.Grant(ctx, "u1", 15); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if ok, _ := ledger.TryDeduct(ctx, "u1", 10); !ok {
		t.Fatalf("expected first deduction to succeed")
	}
	if ok, _ := ledger.TryDeduct(ctx, "u1", 10); ok {
		t.Fatalf("expected second deduction to be refused")
	}
	if balance, _ := ledger.Balance(ctx, "u1"); balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}
	if _, err := ledger.TryDeduct(ctx, "", 1); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
