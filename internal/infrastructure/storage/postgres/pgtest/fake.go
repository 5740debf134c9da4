// Package pgtest provides a scripted postgres.Querier for repository tests.
package pgtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"crm/internal/infrastructure/storage/postgres"
)

// ErrNoQuery is returned by Query; row sets are not scripted.
var ErrNoQuery = errors.New("pgtest: Query is not scripted")

// Call is one statement the repository sent.
type Call struct {
	SQL  string
	Args []any
}

// DB records statements and answers them from queued results in order.
type DB struct {
	mu    sync.Mutex
	Calls []Call
	execs []execResult
	rows  []Row
}

type execResult struct {
	tag pgconn.CommandTag
	err error
}

var (
	_ postgres.Querier         = (*DB)(nil)
	_ postgres.QuerierProvider = (*DB)(nil)
)

// New creates an empty fake.
func New() *DB {
	return &DB{}
}

// GetQuerier implements postgres.QuerierProvider.
func (db *DB) GetQuerier(context.Context) postgres.Querier {
	return db
}

// ExpectExec queues the outcome of the next Exec. tag is a command tag such
// as "UPDATE 1".
func (db *DB) ExpectExec(tag string, err error) *DB {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execs = append(db.execs, execResult{tag: pgconn.NewCommandTag(tag), err: err})
	return db
}

// ExpectRow queues the row returned by the next QueryRow.
func (db *DB) ExpectRow(r Row) *DB {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rows = append(db.rows, r)
	return db
}

// Last returns the most recent call.
func (db *DB) Last() Call {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.Calls) == 0 {
		return Call{}
	}
	return db.Calls[len(db.Calls)-1]
}

func (db *DB) record(sql string, args []any) {
	db.Calls = append(db.Calls, Call{SQL: sql, Args: args})
}

// Exec implements postgres.Querier.
func (db *DB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.record(sql, args)
	if len(db.execs) == 0 {
		return pgconn.NewCommandTag("EXEC 0"), nil
	}
	res := db.execs[0]
	db.execs = db.execs[1:]
	return res.tag, res.err
}

// Query implements postgres.Querier.
func (db *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.record(sql, args)
	return nil, ErrNoQuery
}

// QueryRow implements postgres.Querier.
func (db *DB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.record(sql, args)
	if len(db.rows) == 0 {
		return Row{Err: pgx.ErrNoRows}
	}
	r := db.rows[0]
	db.rows = db.rows[1:]
	return r
}

// Row is a single scripted result row.
type Row struct {
	Values []any
	Err    error
}

// Values builds a row from column values.
func Values(vals ...any) Row {
	return Row{Values: vals}
}

// NoRows is a row that reports pgx.ErrNoRows.
func NoRows() Row {
	return Row{Err: pgx.ErrNoRows}
}

// Scan assigns Values to dest by reflection.
func (r Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	if len(dest) != len(r.Values) {
		return fmt.Errorf("pgtest: scan %d columns into %d targets", len(r.Values), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Ptr || dv.IsNil() {
			return fmt.Errorf("pgtest: target %d is not a pointer", i)
		}
		v := reflect.ValueOf(r.Values[i])
		if v.IsValid() && v.Type().AssignableTo(dv.Elem().Type()) {
			dv.Elem().Set(v)
			continue
		}
		if s, ok := d.(interface{ Scan(src any) error }); ok {
			if err := s.Scan(r.Values[i]); err != nil {
				return err
			}
			continue
		}
		return fmt.Errorf("pgtest: cannot assign %T to %s", r.Values[i], dv.Elem().Type())
	}
	return nil
}
