package persistence

import (
	"context"
	"errors"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type beginFunc func(ctx context.Context) (pgx.Tx, error)

func (f beginFunc) Begin(ctx context.Context) (pgx.Tx, error) { return f(ctx) }

type txStub struct {
	execErr   error
	row       pgx.Row
	rowFn     func(sql string, args []any) pgx.Row
	rows      *stubRows
	rowsQueue []*stubRows
	queryErr  error
	commitErr error
	batchErr  error

	committed bool
	queries   []string
	lastArgs  []any
	batches   []*pgx.Batch
}

func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}
func (t *txStub) Rollback(context.Context) error { return nil }
func (t *txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *txStub) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	t.batches = append(t.batches, b)
	return fakeBatchResults{err: t.batchErr}
}
func (t *txStub) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }
func (t *txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *txStub) Conn() *pgx.Conn { return nil }

func (t *txStub) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.queries = append(t.queries, sql)
	return pgconn.CommandTag{}, t.execErr
}

func (t *txStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	t.queries = append(t.queries, sql)
	t.lastArgs = args
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	if len(t.rowsQueue) > 0 {
		next := t.rowsQueue[0]
		t.rowsQueue = t.rowsQueue[1:]
		return next, nil
	}
	if t.rows != nil {
		return t.rows, nil
	}
	return &stubRows{}, nil
}

func (t *txStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.queries = append(t.queries, sql)
	t.lastArgs = args
	if t.rowFn != nil {
		return t.rowFn(sql, args)
	}
	if t.row != nil {
		return t.row
	}
	return stubRow{err: errors.New("row not mocked")}
}

type stubRows struct {
	vals    [][]any
	idx     int
	scanErr error
	err     error
	closed  bool
}

func (r *stubRows) Close()                        { r.closed = true }
func (r *stubRows) Err() error                    { return r.err }
func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription {
	return nil
}
func (r *stubRows) Next() bool {
	if r.idx >= len(r.vals) {
		return false
	}
	r.idx++
	return true
}
func (r *stubRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return stubRow{vals: r.vals[r.idx-1]}.Scan(dest...)
}
func (r *stubRows) Values() ([]any, error) { return r.vals[r.idx-1], nil }
func (r *stubRows) RawValues() [][]byte    { return nil }
func (r *stubRows) Conn() *pgx.Conn        { return nil }

type stubRow struct {
	vals []any
	err  error
}

// Scan assigns by reflection; nil values leave the destination untouched and plain values are
// boxed when the destination is a pointer field.
func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) || r.vals[i] == nil {
			continue
		}
		dv := reflect.ValueOf(dest[i]).Elem()
		vv := reflect.ValueOf(r.vals[i])
		switch {
		case vv.Type().AssignableTo(dv.Type()):
			dv.Set(vv)
		case dv.Kind() == reflect.Pointer && vv.Type().ConvertibleTo(dv.Type().Elem()):
			p := reflect.New(dv.Type().Elem())
			p.Elem().Set(vv.Convert(dv.Type().Elem()))
			dv.Set(p)
		case vv.Type().ConvertibleTo(dv.Type()):
			dv.Set(vv.Convert(dv.Type()))
		}
	}
	return nil
}

type fakeBatchResults struct {
	err error
}

func (f fakeBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, f.err }
func (fakeBatchResults) Query() (pgx.Rows, error)           { return &stubRows{}, nil }
func (fakeBatchResults) QueryRow() pgx.Row                  { return stubRow{} }
func (fakeBatchResults) Close() error                       { return nil }
