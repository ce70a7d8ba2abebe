package orgunit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubTx struct {
	row    pgx.Row
	rowErr error
	sql    string
	args   []any
}

func (t *stubTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *stubTx) Commit(context.Context) error          { return nil }
func (t *stubTx) Rollback(context.Context) error        { return nil }
func (t *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Conn() *pgx.Conn { return nil }

func (t *stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (t *stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not mocked")
}

func (t *stubTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.sql = sql
	t.args = args
	if t.rowErr != nil {
		return stubRow{err: t.rowErr}
	}
	if t.row != nil {
		return t.row
	}
	return stubRow{err: pgx.ErrNoRows}
}

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) {
			continue
		}
		if d, ok := dest[i].(*int64); ok {
			*d = r.vals[i].(int64)
		}
	}
	return nil
}

func TestNormalizeSourceRef(t *testing.T) {
	t.Run("trims", func(t *testing.T) {
		got, err := NormalizeSourceRef("  dhis2:abc  ")
		if err != nil || got != "dhis2:abc" {
			t.Fatalf("got=%q err=%v", got, err)
		}
	})

	t.Run("blank invalid", func(t *testing.T) {
		if _, err := NormalizeSourceRef(" \t "); !errors.Is(err, ErrSourceRefInvalid) {
			t.Fatalf("expected ErrSourceRefInvalid, got %v", err)
		}
	})

	t.Run("too long invalid", func(t *testing.T) {
		if _, err := NormalizeSourceRef(strings.Repeat("x", 256)); !errors.Is(err, ErrSourceRefInvalid) {
			t.Fatalf("expected ErrSourceRefInvalid, got %v", err)
		}
	})
}

func TestResolveIDBySourceRef(t *testing.T) {
	t.Run("invalid ref", func(t *testing.T) {
		if _, err := ResolveIDBySourceRef(context.Background(), &stubTx{}, 1, ""); !errors.Is(err, ErrSourceRefInvalid) {
			t.Fatalf("expected ErrSourceRefInvalid, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		tx := &stubTx{rowErr: pgx.ErrNoRows}
		if _, err := ResolveIDBySourceRef(context.Background(), tx, 1, "abc"); !errors.Is(err, ErrSourceRefNotFound) {
			t.Fatalf("expected ErrSourceRefNotFound, got %v", err)
		}
	})

	t.Run("row error", func(t *testing.T) {
		tx := &stubTx{rowErr: errors.New("boom")}
		if _, err := ResolveIDBySourceRef(context.Background(), tx, 1, "abc"); err == nil || errors.Is(err, ErrSourceRefNotFound) {
			t.Fatalf("expected raw error, got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		tx := &stubTx{row: stubRow{vals: []any{int64(42)}}}
		id, err := ResolveIDBySourceRef(context.Background(), tx, 7, " abc ")
		if err != nil || id != 42 {
			t.Fatalf("id=%d err=%v", id, err)
		}
		if tx.args[0] != int64(7) || tx.args[1] != "abc" {
			t.Fatalf("args=%v", tx.args)
		}
	})
}
