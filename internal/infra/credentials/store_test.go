package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token string
	err   error
	tag   string
	exec  struct {
		query string
		args  []any
	}
	queried []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.NewCommandTag(s.tag), s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queried = args
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestToken(t *testing.T) {
	exec := &stubExecutor{token: " kie-123 "}
	store := NewStore(exec)
	key, err := store.Token(context.Background(), " KIE ")
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "kie-123" {
		t.Fatalf("expected kie-123, got %q", key)
	}
	if len(exec.queried) != 1 || exec.queried[0] != "kie" {
		t.Fatalf("provider not normalized: %v", exec.queried)
	}
}

func TestTokenNoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.Token(context.Background(), ProviderQwen)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestTokenPropagatesErrors(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("conn reset")})
	if _, err := store.Token(context.Background(), ProviderHeyGen); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolvePrefersEnvironment(t *testing.T) {
	exec := &stubExecutor{token: "from-db"}
	store := NewStore(exec)

	key, err := store.Resolve(context.Background(), ProviderKie, " from-env ")
	if err != nil || key != "from-env" {
		t.Fatalf("Resolve = %q, %v", key, err)
	}
	if exec.queried != nil {
		t.Fatalf("database should not be read when the env value is set")
	}

	key, err = store.Resolve(context.Background(), ProviderKie, "")
	if err != nil || key != "from-db" {
		t.Fatalf("Resolve fallback = %q, %v", key, err)
	}

	var none *Store
	if key, err := none.Resolve(context.Background(), ProviderKie, ""); err != nil || key != "" {
		t.Fatalf("nil store Resolve = %q, %v", key, err)
	}
}

func TestSetToken(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetToken(context.Background(), "HeyGen", " secret ", nil); err != nil {
		t.Fatalf("SetToken error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[0].(string); !ok || v != ProviderHeyGen {
		t.Fatalf("expected heygen provider, got %T %v", exec.exec.args[0], exec.exec.args[0])
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if raw, ok := exec.exec.args[2].([]byte); !ok || string(raw) != "{}" {
		t.Fatalf("expected empty properties, got %T %v", exec.exec.args[2], exec.exec.args[2])
	}
}

func TestSetTokenRejectsBadInput(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetToken(context.Background(), ProviderQwen, " ", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.SetToken(context.Background(), "gemini", "k", nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestDeleteToken(t *testing.T) {
	store := NewStore(&stubExecutor{tag: "DELETE 1"})
	removed, err := store.DeleteToken(context.Background(), ProviderKie)
	if err != nil || !removed {
		t.Fatalf("DeleteToken = %v, %v", removed, err)
	}

	store = NewStore(&stubExecutor{tag: "DELETE 0"})
	if removed, _ := store.DeleteToken(context.Background(), ProviderKie); removed {
		t.Fatal("expected no row removed")
	}
}
