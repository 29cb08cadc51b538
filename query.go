// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/jmoiron/sqlx"

	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// Iterator reads the rows of a query one by one. It is single pass and must
// not be used from several goroutines at once. [Iterator.Close] must be
// called once iteration is finished.
type Iterator struct {
	db      *DB
	rows    *sql.Rows
	cols    []string
	err     error
	started bool
	read    int64
}

// Iter runs query and returns an [Iterator] over its rows. Errors running
// the query are returned by [Iterator.Close].
//
// The arguments are sql.NamedArg values, maps with string keys and records,
// which are referenced by @name placeholders, or positional arguments passed
// to the driver unchanged. A record supplies an argument for each of its
// readable fields, named after the field.
func (db *DB) Iter(ctx context.Context, query string, args ...any) *Iterator {
	text, values, err := db.compileQuery(query, args)
	if err != nil {
		return &Iterator{db: db, err: err}
	}
	return db.iter(ctx, text, values)
}

// iter runs a query already rendered for the driver.
func (db *DB) iter(ctx context.Context, query string, args []any) *Iterator {
	rows, err := db.query(ctx, query, args)
	if err != nil {
		return &Iterator{db: db, err: err}
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return &Iterator{db: db, err: err}
	}
	return &Iterator{db: db, rows: rows, cols: cols}
}

// Columns returns the names of the result columns.
func (iter *Iterator) Columns() []string {
	return iter.cols
}

// Next prepares the next row for [Iterator.Get]. It returns false when there
// are no more rows or an error occurred. The error is returned by
// [Iterator.Close].
func (iter *Iterator) Next() bool {
	iter.started = true
	if iter.err != nil || iter.rows == nil {
		return false
	}
	if !iter.rows.Next() {
		return false
	}
	iter.read++
	return true
}

// Get decodes the current row into dest, which is one of:
//   - a pointer to a record, whose fields are matched to the columns by
//     column name. Columns without a field are dropped.
//   - a map[string]any, or a pointer to one, that receives an entry per
//     column.
//   - a pointer to a []any, set to the values of the columns in order.
//   - a pointer to any other type, set to the value of the only column.
//
// NULL is decoded as nil into pointers, maps and slices, and as the zero
// value otherwise.
func (iter *Iterator) Get(dest any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %w", err)
		}
	}()
	if !iter.started {
		return fmt.Errorf("cannot call Get before Next")
	}
	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}

	switch d := dest.(type) {
	case map[string]any:
		if d == nil {
			return fmt.Errorf("need non-nil map")
		}
		return sqlx.MapScan(iter.rows, d)
	case *map[string]any:
		if d == nil {
			return fmt.Errorf("got nil pointer")
		}
		if *d == nil {
			*d = make(map[string]any, len(iter.cols))
		}
		return sqlx.MapScan(iter.rows, *d)
	case *[]any:
		if d == nil {
			return fmt.Errorf("got nil pointer")
		}
		values, err := sqlx.SliceScan(iter.rows)
		if err != nil {
			return err
		}
		*d = values
		return nil
	}

	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer {
		if !v.IsValid() {
			return fmt.Errorf("need pointer, got nil")
		}
		return fmt.Errorf("need pointer, got %s", v.Kind())
	}
	if v.IsNil() {
		return fmt.Errorf("got nil pointer")
	}
	v = v.Elem()
	if v.Kind() == reflect.Pointer && typeinfo.IsRecord(v.Type().Elem()) {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	if typeinfo.IsRecord(v.Type()) {
		return iter.getRecord(v)
	}
	return iter.getValue(v)
}

// getRecord scans the current row into the record value v.
func (iter *Iterator) getRecord(v reflect.Value) error {
	info, err := iter.db.registry.TypeInfo(v.Type())
	if err != nil {
		return err
	}
	ptrs, proxies, err := info.ScanTargets(iter.cols, v)
	if err != nil {
		return err
	}
	return scan(iter.rows, ptrs, proxies)
}

// getValue scans the only column of the current row into v.
func (iter *Iterator) getValue(v reflect.Value) error {
	if len(iter.cols) != 1 {
		return fmt.Errorf("cannot scan %d columns into %s", len(iter.cols), v.Type())
	}
	ptr, proxy, err := typeinfo.ValueScanTarget(v)
	if err != nil {
		return err
	}
	var proxies []*typeinfo.ScanProxy
	if proxy != nil {
		proxies = append(proxies, proxy)
	}
	return scan(iter.rows, []any{ptr}, proxies)
}

func scan(rows *sql.Rows, ptrs []any, proxies []*typeinfo.ScanProxy) error {
	if err := rows.Scan(ptrs...); err != nil {
		return err
	}
	for _, proxy := range proxies {
		if err := proxy.OnSuccess(); err != nil {
			return err
		}
	}
	return nil
}

// Close finishes the iteration and returns any error encountered. Close can
// be called multiple times and returns the same error.
func (iter *Iterator) Close() error {
	iter.started = true
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Err()
	if cerr := iter.rows.Close(); err == nil {
		err = cerr
	}
	iter.rows = nil
	iter.db.stats.rows.Add(iter.read)
	if iter.err == nil {
		iter.err = err
	}
	return iter.err
}

// collect reads every row of iter with get. On error no results are
// returned.
func collect[T any](iter *Iterator, get func(*T) error) ([]T, error) {
	defer iter.Close()
	results := []T{}
	for iter.Next() {
		var v T
		if err := get(&v); err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return results, nil
}

// Query runs query and returns its rows as values of type T. A record type
// receives the columns matching its fields, any other type the value of the
// only column. See [DB.Iter] for the arguments.
func Query[T any](ctx context.Context, db *DB, query string, args ...any) ([]T, error) {
	iter := db.Iter(ctx, query, args...)
	return collect(iter, func(v *T) error { return iter.Get(v) })
}

// QueryAssoc runs query and returns each row as a map from column name to
// value.
func (db *DB) QueryAssoc(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	iter := db.Iter(ctx, query, args...)
	return collect(iter, func(m *map[string]any) error { return iter.Get(m) })
}

// QueryArray runs query and returns each row as the values of its columns in
// order.
func (db *DB) QueryArray(ctx context.Context, query string, args ...any) ([][]any, error) {
	iter := db.Iter(ctx, query, args...)
	return collect(iter, func(row *[]any) error { return iter.Get(row) })
}

// Scalar runs query and returns the first column of the first row. It
// returns [ErrNoRows] if there are no rows.
func Scalar[T any](ctx context.Context, db *DB, query string, args ...any) (T, error) {
	var zero T
	iter := db.Iter(ctx, query, args...)
	defer iter.Close()
	if !iter.Next() {
		if err := iter.Close(); err != nil {
			return zero, err
		}
		return zero, ErrNoRows
	}
	if len(iter.cols) == 0 {
		return zero, fmt.Errorf("query returned no columns")
	}
	values := make([]any, len(iter.cols))
	var v T
	ptr, proxy, err := typeinfo.ValueScanTarget(reflect.ValueOf(&v).Elem())
	if err != nil {
		return zero, err
	}
	values[0] = ptr
	var sink any
	for i := 1; i < len(values); i++ {
		values[i] = &sink
	}
	var proxies []*typeinfo.ScanProxy
	if proxy != nil {
		proxies = append(proxies, proxy)
	}
	if err := scan(iter.rows, values, proxies); err != nil {
		return zero, err
	}
	if err := iter.Close(); err != nil {
		return zero, err
	}
	return v, nil
}

// Exec runs a statement returning no rows and returns the number of rows
// affected. See [DB.Iter] for the arguments.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	text, values, err := db.compileQuery(query, args)
	if err != nil {
		return 0, err
	}
	res, err := db.exec(ctx, text, values)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
