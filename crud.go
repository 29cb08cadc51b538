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

// typeInfo returns the metadata of T.
func typeInfo[T any](db *DB) (*typeinfo.Info, error) {
	return db.registry.TypeInfo(reflect.TypeOf((*T)(nil)).Elem())
}

// keyedType checks, when T or the type it points to is a record type, that
// it can be stored and identified by key. Batches of other element types
// are checked once their first record is resolved.
func keyedType[T any](db *DB, op string) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if !typeinfo.IsRecord(t) {
		return nil
	}
	info, err := db.registry.TypeInfo(t)
	if err != nil {
		return err
	}
	if err := info.CheckTable(); err != nil {
		return err
	}
	return requireKeys(info, op)
}

// Get returns the record of type T whose key fields equal ids, given in the
// order the key fields are declared. It returns [ErrNoRows] if there is no
// such record.
func Get[T any](ctx context.Context, db *DB, ids ...any) (*T, error) {
	info, err := typeInfo[T](db)
	if err != nil {
		return nil, err
	}
	if err := info.CheckTable(); err != nil {
		return nil, err
	}
	if err := requireKeys(info, "get"); err != nil {
		return nil, err
	}
	if len(ids) != len(info.Keys()) {
		return nil, &KeyArityMismatchError{Type: info.Type, Want: len(info.Keys()), Got: len(ids)}
	}
	b, err := stmt.SelectByKey(info, ids)
	if err != nil {
		return nil, err
	}
	text, args, err := db.compile(b)
	if err != nil {
		return nil, err
	}

	iter := db.iter(ctx, text, args)
	defer iter.Close()
	if !iter.Next() {
		if err := iter.Close(); err != nil {
			return nil, err
		}
		return nil, ErrNoRows
	}
	var result T
	if err := iter.Get(&result); err != nil {
		return nil, err
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return &result, nil
}

// Insert inserts record into the table of its type and returns the number
// of rows inserted. If the type has generated fields, they are set to the
// values produced by the database.
func Insert[T any](ctx context.Context, db *DB, record *T) (int64, error) {
	v, info, err := db.recordInfo(reflect.ValueOf(record))
	if err != nil {
		return 0, fmt.Errorf("cannot insert: %w", err)
	}
	if err := info.CheckTable(); err != nil {
		return 0, err
	}
	if len(info.Generated()) > 0 {
		return db.insertReturning(ctx, info, v)
	}
	return db.insertRecords(ctx, info, info.Table, []reflect.Value{v})
}

// InsertMany inserts records with as few statements as the dialect allows
// and returns the number of rows inserted. The type of the records is
// resolved from the first one, and every record must be of that type.
// Generated fields are not read back.
func InsertMany[T any](ctx context.Context, db *DB, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	values, info, err := db.batchInfo(reflect.ValueOf(records))
	if err != nil {
		return 0, fmt.Errorf("cannot insert: %w", err)
	}
	if err := info.CheckTable(); err != nil {
		return 0, err
	}
	return db.insertRecords(ctx, info, info.Table, values)
}

// InsertIfMissing inserts record unless a row with the same key exists. It
// returns the number of rows inserted.
func InsertIfMissing[T any](ctx context.Context, db *DB, record *T) (int64, error) {
	return InsertManyIfMissing(ctx, db, []*T{record})
}

// InsertManyIfMissing inserts the records whose key is not found in the
// table and returns the number of rows inserted.
func InsertManyIfMissing[T any](ctx context.Context, db *DB, records []T) (int64, error) {
	if err := keyedType[T](db, "insert if missing"); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	values, info, err := db.batchInfo(reflect.ValueOf(records))
	if err != nil {
		return 0, fmt.Errorf("cannot insert: %w", err)
	}
	if err := info.CheckTable(); err != nil {
		return 0, err
	}
	if err := requireKeys(info, "insert if missing"); err != nil {
		return 0, err
	}
	return db.insertIfMissing(ctx, info, info.Table, typeinfo.Columns(info.Keys()), values)
}

// Upsert inserts record, or updates the row with the same key. It returns
// true if the record was inserted.
func Upsert[T any](ctx context.Context, db *DB, record *T) (bool, error) {
	outcomes, err := UpsertMany(ctx, db, []*T{record})
	if err != nil {
		return false, err
	}
	return outcomes[0], nil
}

// UpsertMany inserts records, updating the rows that share their key. It
// returns, for each record in order, whether it was inserted.
func UpsertMany[T any](ctx context.Context, db *DB, records []T) ([]bool, error) {
	if err := keyedType[T](db, "upsert"); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []bool{}, nil
	}
	values, info, err := db.batchInfo(reflect.ValueOf(records))
	if err != nil {
		return nil, fmt.Errorf("cannot upsert: %w", err)
	}
	if err := info.CheckTable(); err != nil {
		return nil, err
	}
	if err := requireKeys(info, "upsert"); err != nil {
		return nil, err
	}
	return db.upsert(ctx, info, info.Table, typeinfo.Columns(info.Keys()), values)
}

// Update sets the columns of the row with the key of record to the values
// of its writable fields. It returns the number of rows updated.
func Update[T any](ctx context.Context, db *DB, record *T) (int64, error) {
	v, info, err := db.recordInfo(reflect.ValueOf(record))
	if err != nil {
		return 0, fmt.Errorf("cannot update: %w", err)
	}
	if err := info.CheckTable(); err != nil {
		return 0, err
	}
	if err := requireKeys(info, "update"); err != nil {
		return 0, err
	}
	b, err := stmt.UpdateByKey(info, v)
	if err != nil {
		return 0, err
	}
	return db.execBound(ctx, b, false)
}

// UpdateWhere sets the columns of the rows matching where to the values of
// the writable fields of record. The fields are bound to parameters named
// after them, so the arguments of where must use other names. Arguments are
// given as in [DB.Iter] but cannot be positional.
func UpdateWhere[T any](ctx context.Context, db *DB, record *T, where string, args ...any) (int64, error) {
	v, info, err := db.recordInfo(reflect.ValueOf(record))
	if err != nil {
		return 0, fmt.Errorf("cannot update: %w", err)
	}
	if err := info.CheckTable(); err != nil {
		return 0, err
	}
	qa, err := db.whereArgs(args)
	if err != nil {
		return 0, fmt.Errorf("cannot update %s: %w", info.Table, err)
	}
	b, err := stmt.Update(info.Table, info.Writable(), v, where, qa.named)
	if err != nil {
		return 0, err
	}
	return db.execBound(ctx, b, qa.partial)
}

// Delete deletes the row with the key of record. It returns the number of
// rows deleted.
func Delete[T any](ctx context.Context, db *DB, record *T) (int64, error) {
	v, info, err := db.recordInfo(reflect.ValueOf(record))
	if err != nil {
		return 0, fmt.Errorf("cannot delete: %w", err)
	}
	if err := info.CheckTable(); err != nil {
		return 0, err
	}
	if err := requireKeys(info, "delete"); err != nil {
		return 0, err
	}
	b, err := stmt.DeleteByKey(info, v)
	if err != nil {
		return 0, err
	}
	return db.execBound(ctx, b, false)
}

// DeleteWhere deletes the rows of the table of T matching where and returns
// the number of rows deleted. Arguments are given as in [DB.Iter] but cannot
// be positional.
func DeleteWhere[T any](ctx context.Context, db *DB, where string, args ...any) (int64, error) {
	info, err := typeInfo[T](db)
	if err != nil {
		return 0, err
	}
	if err := info.CheckTable(); err != nil {
		return 0, err
	}
	qa, err := db.whereArgs(args)
	if err != nil {
		return 0, fmt.Errorf("cannot delete from %s: %w", info.Table, err)
	}
	b, err := stmt.Delete(info.Table, where, qa.named)
	if err != nil {
		return 0, err
	}
	return db.execBound(ctx, b, qa.partial)
}

// whereArgs returns the named arguments of a caller supplied predicate.
func (db *DB) whereArgs(args []any) (*queryArgs, error) {
	qa, err := db.bindArgs(args)
	if err != nil {
		return nil, err
	}
	if len(qa.positional) > 0 {
		return nil, fmt.Errorf("predicate arguments must be named")
	}
	return qa, nil
}

// execBound compiles and runs a synthesized statement returning no rows.
func (db *DB) execBound(ctx context.Context, b *stmt.Bound, allowUnused bool) (int64, error) {
	text, args, err := db.dialect.Compile(b.SQL, b.Args, allowUnused)
	if err != nil {
		return 0, err
	}
	res, err := db.exec(ctx, text, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
