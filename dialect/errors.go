// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	moderncsqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// violation names one class of constraint failure in the terms of each
// driver.
type violation struct {
	sqlState string
	mattn    []sqlite3.ErrNoExtended
	modernc  []int
}

var (
	uniqueViolation = violation{
		sqlState: pgerrcode.UniqueViolation,
		mattn:    []sqlite3.ErrNoExtended{sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey},
		modernc:  []int{sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY},
	}
	foreignKeyViolation = violation{
		sqlState: pgerrcode.ForeignKeyViolation,
		mattn:    []sqlite3.ErrNoExtended{sqlite3.ErrConstraintForeignKey},
		modernc:  []int{sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY},
	}
	notNullViolation = violation{
		sqlState: pgerrcode.NotNullViolation,
		mattn:    []sqlite3.ErrNoExtended{sqlite3.ErrConstraintNotNull},
		modernc:  []int{sqlitelib.SQLITE_CONSTRAINT_NOTNULL},
	}
)

// IsUniqueViolation reports whether err is a backend error raised because a
// row duplicated a primary key or unique constraint.
func IsUniqueViolation(err error) bool {
	return uniqueViolation.matches(err)
}

// IsForeignKeyViolation reports whether err is a backend error raised because
// a row referenced a missing parent.
func IsForeignKeyViolation(err error) bool {
	return foreignKeyViolation.matches(err)
}

// IsNotNullViolation reports whether err is a backend error raised because a
// NULL was written to a NOT NULL column.
func IsNotNullViolation(err error) bool {
	return notNullViolation.matches(err)
}

func (v violation) matches(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == v.sqlState
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == v.sqlState
	}

	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		for _, code := range v.mattn {
			if mattnErr.ExtendedCode == code {
				return true
			}
		}
		return false
	}

	var moderncErr *moderncsqlite.Error
	if errors.As(err, &moderncErr) {
		for _, code := range v.modernc {
			if moderncErr.Code() == code {
				return true
			}
		}
	}
	return false
}
