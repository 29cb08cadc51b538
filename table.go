// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"fmt"
	"reflect"

	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// The operations in this file store records in a table named by the caller
// rather than the table of their type, and identify rows by the columns the
// caller names rather than the key fields of the type. Table and column
// names are checked to be plain SQL identifiers before use.

// InsertInto inserts records into table and returns the number of rows
// inserted. Every record must be of the same type.
func (db *DB) InsertInto(ctx context.Context, table string, records ...any) (int64, error) {
	values, info, err := db.tableBatch(table, nil, records)
	if err != nil || len(values) == 0 {
		return 0, err
	}
	return db.insertRecords(ctx, info, table, values)
}

// InsertIntoIfMissing inserts the records into table that do not conflict
// with existing rows on keyColumns and returns the number of rows inserted.
func (db *DB) InsertIntoIfMissing(ctx context.Context, table string, keyColumns []string, records ...any) (int64, error) {
	values, info, err := db.tableBatch(table, keyColumns, records)
	if err != nil || len(values) == 0 {
		return 0, err
	}
	if len(keyColumns) == 0 {
		return 0, &MissingKeyError{Type: info.Type, Op: "insert if missing into " + table}
	}
	return db.insertIfMissing(ctx, info, table, keyColumns, values)
}

// UpsertInto inserts records into table, updating the rows that conflict on
// keyColumns. It returns, for each record in order, whether it was inserted.
func (db *DB) UpsertInto(ctx context.Context, table string, keyColumns []string, records ...any) ([]bool, error) {
	values, info, err := db.tableBatch(table, keyColumns, records)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return []bool{}, nil
	}
	if len(keyColumns) == 0 {
		return nil, &MissingKeyError{Type: info.Type, Op: "upsert into " + table}
	}
	return db.upsert(ctx, info, table, keyColumns, values)
}

// tableBatch checks the identifiers of a table operation and resolves its
// records.
func (db *DB) tableBatch(table string, keyColumns []string, records []any) ([]reflect.Value, *typeinfo.Info, error) {
	if !typeinfo.ValidTable(table) {
		return nil, nil, fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table)
	}
	for _, col := range keyColumns {
		if !typeinfo.ValidColumn(col) {
			return nil, nil, fmt.Errorf("%w: column %q", ErrInvalidIdentifier, col)
		}
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	values, info, err := db.batchInfo(reflect.ValueOf(records))
	if err != nil {
		return nil, nil, fmt.Errorf("cannot write to %s: %w", table, err)
	}
	return values, info, nil
}
