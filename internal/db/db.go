// Package db provides driver-aware low-level SQL helpers shared by the
// persistence, entity, auth, and workflow repositories: raw database/sql
// access with driver-specific identifier quoting and placeholder
// rewriting, rather than an ORM or query builder.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/pkg/sqlutil"
)

// DB wraps a *sql.DB with the driver name needed for placeholder rewriting
// and identifier quoting. Postgres (via pgx/v5/stdlib) is the only driver
// this core wires up; the driver field is carried regardless so the same
// sqlutil helpers used for identifier quoting stay driver-generic.
type DB struct {
	Conn   *sql.DB
	Driver string
}

// Open opens a pgx-backed connection pool against url.
func Open(url string) (*DB, error) {
	conn, err := sql.Open("pgx", url)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "open database connection")
	}
	return &DB{Conn: conn, Driver: "pgx"}, nil
}

func (d *DB) Ping(ctx context.Context) error {
	if err := d.Conn.PingContext(ctx); err != nil {
		return errs.Wrap(errs.Database, err, "ping database")
	}
	return nil
}

func (d *DB) Close() error { return d.Conn.Close() }

// Placeholder returns the positional placeholder for this driver at the
// given 1-based argument index.
func (d *DB) Placeholder(index int) string { return sqlutil.Placeholder(d.Driver, index) }

// QuoteIdent quotes an identifier (table/column/view name) for this driver.
func (d *DB) QuoteIdent(name string) (string, error) { return sqlutil.QuoteIdent(d.Driver, name) }

// Placeholders returns n placeholders starting at 1, comma-joined — a
// convenience for building VALUES(...) clauses.
func (d *DB) Placeholders(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += d.Placeholder(i)
	}
	return out
}

// IsUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the signal that maps to a Conflict error.
func IsUniqueViolation(err error) bool {
	var s interface{ SQLState() string }
	if ok := asSQLStater(err, &s); ok {
		return s.SQLState() == "23505"
	}
	return false
}

func asSQLStater(err error, target *interface{ SQLState() string }) bool {
	for err != nil {
		if s, ok := err.(interface{ SQLState() string }); ok {
			*target = s
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// UniqueViolationConstraint returns the constraint name of a Postgres
// unique_violation error, used by the persistence pipeline to map a failed
// write back to the offending field via entity.UniqueConstraintName's naming
// scheme.
func UniqueViolationConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// Fmt is a tiny helper to avoid importing fmt in every call site that just
// wants to build a query string with the driver's quoted identifiers.
func Fmt(format string, args ...any) string { return fmt.Sprintf(format, args...) }
