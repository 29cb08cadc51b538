// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"fmt"
	"reflect"

	"github.com/canonical/sqlrecord/internal/stmt"
	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// indirect follows pointers and interfaces to the value they hold. ok is
// false if a nil is found on the way.
func indirect(v reflect.Value) (_ reflect.Value, ok bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

// recordInfo returns the record held by v and the metadata of its type.
func (db *DB) recordInfo(v reflect.Value) (reflect.Value, *typeinfo.Info, error) {
	rv, ok := indirect(v)
	if !ok {
		return reflect.Value{}, nil, fmt.Errorf("got nil record")
	}
	if !typeinfo.IsRecord(rv.Type()) {
		return reflect.Value{}, nil, fmt.Errorf("need record, got %s", rv.Type())
	}
	info, err := db.registry.TypeInfo(rv.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return rv, info, nil
}

// batchInfo returns the records held by the elements of the slice records
// and the metadata of their type, resolved from the first record. Every
// record must be of that type.
func (db *DB) batchInfo(records reflect.Value) ([]reflect.Value, *typeinfo.Info, error) {
	values := make([]reflect.Value, records.Len())
	var info *typeinfo.Info
	for i := range values {
		rv, ok := indirect(records.Index(i))
		if !ok {
			return nil, nil, fmt.Errorf("got nil record at index %d", i)
		}
		if info == nil {
			var err error
			if rv, info, err = db.recordInfo(rv); err != nil {
				return nil, nil, err
			}
		} else if rv.Type() != info.Type {
			return nil, nil, fmt.Errorf("%w: record %d is %s, not %s", ErrHeterogeneousBatch, i, rv.Type(), info.Type)
		}
		values[i] = rv
	}
	return values, info, nil
}

// chunk splits records into the batches of single statements, so that no
// statement binds more parameters than the dialect allows.
func (db *DB) chunk(records []reflect.Value, params int) [][]reflect.Value {
	per := len(records)
	if params == 0 {
		// Rows of default values are inserted one by one.
		per = 1
	} else if limit := db.dialect.MaxParams() / params; limit < per {
		per = max(limit, 1)
	}
	var chunks [][]reflect.Value
	for len(records) > 0 {
		n := min(per, len(records))
		chunks = append(chunks, records[:n])
		records = records[n:]
	}
	return chunks
}

// compiled is a statement rendered for the driver.
type compiled struct {
	sql  string
	args []any
	rows int
}

// synthesize builds and compiles the statements inserting records in
// batches. Every statement is built before any is run, so that records that
// cannot be bound fail the operation before the database is reached.
func (db *DB) synthesize(info *typeinfo.Info, records []reflect.Value, build func([]reflect.Value) (*stmt.Bound, error)) ([]compiled, error) {
	var out []compiled
	for _, batch := range db.chunk(records, len(info.Writable())) {
		b, err := build(batch)
		if err != nil {
			return nil, err
		}
		text, args, err := db.compile(b)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled{sql: text, args: args, rows: len(batch)})
	}
	return out, nil
}

// execAll runs statements and returns the total number of rows affected.
func (db *DB) execAll(ctx context.Context, statements []compiled) (int64, error) {
	var total int64
	for _, s := range statements {
		res, err := db.exec(ctx, s.sql, s.args)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// insertRecords inserts records into table.
func (db *DB) insertRecords(ctx context.Context, info *typeinfo.Info, table string, records []reflect.Value) (int64, error) {
	statements, err := db.synthesize(info, records, func(batch []reflect.Value) (*stmt.Bound, error) {
		return stmt.Insert(table, info.Writable(), batch)
	})
	if err != nil {
		return 0, err
	}
	return db.execAll(ctx, statements)
}

// insertReturning inserts the record v and sets its generated fields to the
// values produced by the database.
func (db *DB) insertReturning(ctx context.Context, info *typeinfo.Info, v reflect.Value) (int64, error) {
	if !v.CanAddr() {
		return 0, fmt.Errorf("cannot insert %s: generated fields of record cannot be set", info.Type)
	}
	b, err := stmt.InsertReturning(info.Table, info.Writable(), v, info.Generated())
	if err != nil {
		return 0, err
	}
	text, args, err := db.compile(b)
	if err != nil {
		return 0, err
	}
	iter := db.iter(ctx, text, args)
	defer iter.Close()
	if !iter.Next() {
		if err := iter.Close(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("insert into %s returned no rows", info.Table)
	}
	if err := iter.getRecord(v); err != nil {
		return 0, err
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	return 1, nil
}

// insertIfMissing inserts the records into table that do not conflict with
// existing rows on keyColumns.
func (db *DB) insertIfMissing(ctx context.Context, info *typeinfo.Info, table string, keyColumns []string, records []reflect.Value) (int64, error) {
	statements, err := db.synthesize(info, records, func(batch []reflect.Value) (*stmt.Bound, error) {
		return stmt.InsertIfMissing(table, info.Writable(), batch, keyColumns)
	})
	if err != nil {
		return 0, err
	}
	return db.execAll(ctx, statements)
}

// upsert inserts records into table, updating the rows that conflict on
// keyColumns. It reports for each record whether it was inserted.
func (db *DB) upsert(ctx context.Context, info *typeinfo.Info, table string, keyColumns []string, records []reflect.Value) ([]bool, error) {
	inserted, ok := db.dialect.InsertedPredicate()
	if !ok {
		return nil, fmt.Errorf("cannot upsert into %s: %w %s", table, ErrUpsertUnsupported, db.dialect.Name())
	}
	statements, err := db.synthesize(info, records, func(batch []reflect.Value) (*stmt.Bound, error) {
		return stmt.Upsert(table, info.Writable(), batch, keyColumns, inserted)
	})
	if err != nil {
		return nil, err
	}

	outcomes := make([]bool, 0, len(records))
	for _, s := range statements {
		iter := db.iter(ctx, s.sql, s.args)
		got, err := collect(iter, func(b *bool) error { return iter.Get(b) })
		if err != nil {
			return nil, err
		}
		if len(got) != s.rows {
			return nil, fmt.Errorf("upsert into %s returned %d rows for %d records", table, len(got), s.rows)
		}
		outcomes = append(outcomes, got...)
	}
	return outcomes, nil
}
