package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordingDB struct {
	statements []string
	failAt     int
}

func (r *recordingDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	if r.failAt > 0 && len(r.statements) == r.failAt {
		return pgconn.CommandTag{}, errors.New("relation already locked")
	}
	return pgconn.CommandTag{}, nil
}

func (r *recordingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (r *recordingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestMigrateAppliesEveryStatement(t *testing.T) {
	rec := &recordingDB{}
	if err := Migrate(context.Background(), rec); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(rec.statements) != len(Schema) {
		t.Fatalf("executed %d statements, want %d", len(rec.statements), len(Schema))
	}
	var sawActiveIndex bool
	for _, stmt := range rec.statements {
		if !strings.Contains(stmt, "if not exists") {
			t.Fatalf("statement is not idempotent: %s", stmt)
		}
		if strings.Contains(stmt, "unique index") && strings.Contains(stmt, "'pending'") {
			sawActiveIndex = true
		}
	}
	if !sawActiveIndex {
		t.Fatal("schema must enforce one active job per subject")
	}
}

func TestMigrateStopsOnError(t *testing.T) {
	rec := &recordingDB{failAt: 2}
	err := Migrate(context.Background(), rec)
	if err == nil || !strings.Contains(err.Error(), "statement 2") {
		t.Fatalf("Migrate error = %v", err)
	}
	if len(rec.statements) != 2 {
		t.Fatalf("executed %d statements after failure", len(rec.statements))
	}
}
