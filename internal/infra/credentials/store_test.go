package credentials

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/2010089698/sora2-251007-3/internal/db/migrations"
	"github.com/2010089698/sora2-251007-3/internal/infra"
)

type stubExecutor struct {
	token string
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.exec.query = query
	s.exec.args = args
	return nil, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) infra.Row {
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (infra.Rows, error) {
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

func TestOpenAIAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{token: " sk-test "})
	key, err := store.OpenAIAPIKey(context.Background())
	if err != nil {
		t.Fatalf("OpenAIAPIKey error: %v", err)
	}
	if key != "sk-test" {
		t.Fatalf("expected sk-test, got %q", key)
	}
}

func TestOpenAIAPIKey_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: sql.ErrNoRows})
	key, err := store.OpenAIAPIKey(context.Background())
	if err != nil {
		t.Fatalf("OpenAIAPIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestOpenAIAPIKey_PropagatesErrors(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("db down")})
	if _, err := store.OpenAIAPIKey(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetOpenAIAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetOpenAIAPIKey(context.Background(), " secret "); err != nil {
		t.Fatalf("SetOpenAIAPIKey error: %v", err)
	}
	if len(exec.exec.args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != ProviderOpenAI {
		t.Fatalf("expected provider argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if v, ok := exec.exec.args[2].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[2], exec.exec.args[2])
	}
	if v, ok := exec.exec.args[3].(string); !ok || v != "{}" {
		t.Fatalf("expected empty properties, got %T %v", exec.exec.args[3], exec.exec.args[3])
	}
}

func TestSetOpenAIAPIKeyEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetOpenAIAPIKey(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestStoreUpsertAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db, dialect, err := infra.OpenDB(ctx, filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	defer db.Close()
	if _, err := migrations.Up(ctx, db, string(dialect), infra.NopLogger()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	store := NewStore(infra.NewSQLRunner(db, dialect, infra.NopLogger()))

	if err := store.SetOpenAIAPIKey(ctx, "first"); err != nil {
		t.Fatalf("SetOpenAIAPIKey error: %v", err)
	}
	if err := store.SetOpenAIAPIKey(ctx, "second"); err != nil {
		t.Fatalf("SetOpenAIAPIKey overwrite error: %v", err)
	}
	key, err := store.OpenAIAPIKey(ctx)
	if err != nil {
		t.Fatalf("OpenAIAPIKey error: %v", err)
	}
	if key != "second" {
		t.Fatalf("expected second, got %q", key)
	}
}
