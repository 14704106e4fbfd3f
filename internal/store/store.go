// Package store is the data access layer over the hosted Postgres instance.
// It is a thin, fail-fast boundary: every method issues its statements and
// surfaces the first error to the caller; no retries, no compensation. The
// one multi-statement write (sale completion) is orchestrated by the service
// layer inside a single transaction using the factory pattern below.
package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by the store.
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrItemNotFound    = errors.New("order item not found")
	ErrUnitNotFound    = errors.New("inventory unit not found")
	ErrUnitUnavailable = errors.New("inventory unit is not available")
	ErrAlreadyLinked   = errors.New("order item is already linked to a unit")
)

// DBTX is the subset of pgx methods the store needs. Satisfied by both
// *pgxpool.Pool and pgx.Tx, so the same queries run inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs queries against a DBTX.
type Store struct {
	db  DBTX
	now func() time.Time
}

// New creates a Store over the given pool or transaction.
func New(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// psql builds dollar-placeholder statements for Postgres.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// --- pgtype.Numeric <-> decimal helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
