// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"database/sql/driver"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	moderncsqlite "modernc.org/sqlite"
)

// ForDriver returns the dialect of a database/sql driver, as returned by
// (*sql.DB).Driver.
func ForDriver(d driver.Driver) (Dialect, error) {
	switch d.(type) {
	case *stdlib.Driver, *pq.Driver:
		return Postgres, nil
	case *sqlite3.SQLiteDriver, *moderncsqlite.Driver:
		return SQLite, nil
	}
	return nil, fmt.Errorf("no dialect for driver %T", d)
}

// ForName returns the dialect registered under a dialect or driver name.
func ForName(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}
