// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package dialect holds what differs between database backends: how named
// placeholders reach the driver, how many parameters a statement may carry,
// how an upsert reports whether a row was inserted and how backend errors are
// classified.
package dialect

import (
	"database/sql"
)

// Dialect renders synthesized statements for one database backend.
type Dialect interface {
	// Name returns the name of the backend.
	Name() string

	// Compile turns a statement with @name placeholders and its named
	// arguments into the query text and arguments passed to the driver.
	// Every placeholder must have an argument. Arguments the query does not
	// reference are an error unless allowUnused is set, in which case they
	// are dropped.
	Compile(query string, args []sql.NamedArg, allowUnused bool) (string, []any, error)

	// MaxParams returns the maximum number of parameters of a statement.
	MaxParams() int

	// InsertedPredicate returns an SQL expression that, in the RETURNING
	// clause of an upsert, is true for rows that were inserted rather than
	// updated. ok is false if the backend has no such expression.
	InsertedPredicate() (predicate string, ok bool)
}

var (
	// Postgres is the dialect of PostgreSQL, reached through pgx or lib/pq.
	Postgres Dialect = postgres{}

	// SQLite is the dialect of SQLite, reached through mattn/go-sqlite3 or
	// modernc.org/sqlite.
	SQLite Dialect = sqlite{}
)

type postgres struct{}

func (postgres) Name() string { return "postgres" }

// Compile rewrites the placeholders into ordinal $n parameters. Neither pgx
// nor lib/pq accept sql.NamedArg.
func (postgres) Compile(query string, args []sql.NamedArg, allowUnused bool) (string, []any, error) {
	text, used, err := resolve(query, args, allowUnused)
	if err != nil {
		return "", nil, err
	}
	values := make([]any, len(used))
	for i, arg := range used {
		values[i] = arg.Value
	}
	return text, values, nil
}

func (postgres) MaxParams() int { return 65535 }

// A row inserted by the statement has no deleting transaction yet.
func (postgres) InsertedPredicate() (string, bool) { return "(xmax = 0)", true }

type sqlite struct{}

func (sqlite) Name() string { return "sqlite" }

// Compile keeps the query text. Both SQLite drivers bind sql.NamedArg values
// to @name parameters.
func (sqlite) Compile(query string, args []sql.NamedArg, allowUnused bool) (string, []any, error) {
	_, used, err := resolve(query, args, allowUnused)
	if err != nil {
		return "", nil, err
	}
	values := make([]any, len(used))
	for i, arg := range used {
		values[i] = arg
	}
	return query, values, nil
}

// SQLITE_MAX_VARIABLE_NUMBER since SQLite 3.32.0.
func (sqlite) MaxParams() int { return 32766 }

func (sqlite) InsertedPredicate() (string, bool) { return "", false }
