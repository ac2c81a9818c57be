package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storyboard/internal/infra"
)

type execCall struct {
	query string
	args  []any
}

// stubSQL records statements and answers single-row queries from scanners keyed by query text.
type stubSQL struct {
	execs     []execCall
	execErr   map[string]error
	affected  map[string]int64
	rows      map[string]func(dest ...any) error
	queries   map[string][]func(dest ...any) error
	txCount   int
	rolledBac int
}

func newStubSQL() *stubSQL {
	return &stubSQL{
		execErr:  map[string]error{},
		affected: map[string]int64{},
		rows:     map[string]func(dest ...any) error{},
		queries:  map[string][]func(dest ...any) error{},
	}
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	if err := s.execErr[query]; err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", s.affected[query])), nil
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return simpleRow{scan: s.rows[query]}
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if scans, ok := s.queries[query]; ok {
		return &scriptedRows{scans: scans, pos: -1}, nil
	}
	return &emptyRows{}, nil
}

func (s *stubSQL) InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error {
	s.txCount++
	if err := fn(s); err != nil {
		s.rolledBac++
		return err
	}
	return nil
}

func (s *stubSQL) executed(query string) int {
	n := 0
	for _, call := range s.execs {
		if call.query == query {
			n++
		}
	}
	return n
}

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type emptyRows struct{}

func (*emptyRows) Close()                                       {}
func (*emptyRows) Err() error                                   { return nil }
func (*emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (*emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (*emptyRows) Next() bool                                   { return false }
func (*emptyRows) Scan(dest ...any) error                       { return pgx.ErrNoRows }
func (*emptyRows) Values() ([]any, error)                       { return nil, nil }
func (*emptyRows) RawValues() [][]byte                          { return nil }
func (*emptyRows) Conn() *pgx.Conn                              { return nil }

// scriptedRows yields one row per scanner in order.
type scriptedRows struct {
	emptyRows
	scans  []func(dest ...any) error
	pos    int
	closed bool
}

func (r *scriptedRows) Close() { r.closed = true }

func (r *scriptedRows) Next() bool {
	if r.closed || r.pos+1 >= len(r.scans) {
		return false
	}
	r.pos++
	return true
}

func (r *scriptedRows) Scan(dest ...any) error {
	return r.scans[r.pos](dest...)
}
