// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package stmt

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// Bound is a synthesized statement together with the arguments its
// placeholders refer to.
type Bound struct {
	SQL  string
	Args []sql.NamedArg
}

// sqlBuilder accumulates the SQL of a statement.
type sqlBuilder struct {
	buf strings.Builder
}

func (b *sqlBuilder) write(parts ...string) {
	for _, p := range parts {
		b.buf.WriteString(p)
	}
}

func (b *sqlBuilder) writeList(items []string) {
	b.write(strings.Join(items, ", "))
}

// writeEquals writes "col1 = @p1<sep>col2 = @p2...".
func (b *sqlBuilder) writeEquals(fields []*typeinfo.Field, sep string) {
	for i, f := range fields {
		if i > 0 {
			b.write(sep)
		}
		b.write(f.Column, " = ", placeholder(f.Param))
	}
}

func (b *sqlBuilder) getSQL() string {
	return b.buf.String()
}

// SelectByKey builds a statement selecting the row of info's table whose key
// fields equal ids, given in key declaration order.
func SelectByKey(info *typeinfo.Info, ids []any) (*Bound, error) {
	keys := info.Keys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("internal error: %s has no key fields", info.Type)
	}
	if len(ids) != len(keys) {
		return nil, fmt.Errorf("internal error: %s has %d key fields, got %d values", info.Type, len(keys), len(ids))
	}
	var b sqlBuilder
	b.write("SELECT * FROM ", info.Table, " WHERE ")
	b.writeEquals(keys, " AND ")
	args := make([]sql.NamedArg, len(keys))
	for i, k := range keys {
		args[i] = sql.Named(k.Param, ids[i])
	}
	return &Bound{SQL: b.getSQL(), Args: args}, nil
}

// writeValues writes "INSERT INTO table (columns) VALUES (...), (...)" with
// one tuple of placeholders per record and returns the bound arguments.
func writeValues(b *sqlBuilder, table string, fields []*typeinfo.Field, records []reflect.Value) ([]sql.NamedArg, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("internal error: no records to insert")
	}
	b.write("INSERT INTO ", table)
	if len(fields) == 0 {
		if len(records) > 1 {
			return nil, fmt.Errorf("cannot insert %d rows into %s without writable columns", len(records), table)
		}
		b.write(" DEFAULT VALUES")
		return nil, nil
	}

	b.write(" (")
	b.writeList(typeinfo.Columns(fields))
	b.write(") VALUES ")
	args := make([]sql.NamedArg, 0, len(fields)*len(records))
	for i, record := range records {
		if i > 0 {
			b.write(", ")
		}
		recordArgs, err := Bind(fields, record, i)
		if err != nil {
			return nil, err
		}
		b.write("(")
		for j, arg := range recordArgs {
			if j > 0 {
				b.write(", ")
			}
			b.write(placeholder(arg.Name))
		}
		b.write(")")
		args = append(args, recordArgs...)
	}
	return args, nil
}

// Insert builds a statement inserting records into table. The columns are
// those of fields, in order, for every record of the batch.
func Insert(table string, fields []*typeinfo.Field, records []reflect.Value) (*Bound, error) {
	var b sqlBuilder
	args, err := writeValues(&b, table, fields, records)
	if err != nil {
		return nil, err
	}
	return &Bound{SQL: b.getSQL(), Args: args}, nil
}

// InsertReturning builds a statement inserting a single record and returning
// the columns of returning, which are read back into the record.
func InsertReturning(table string, fields []*typeinfo.Field, record reflect.Value, returning []*typeinfo.Field) (*Bound, error) {
	if len(returning) == 0 {
		return nil, fmt.Errorf("internal error: no columns to return")
	}
	var b sqlBuilder
	args, err := writeValues(&b, table, fields, []reflect.Value{record})
	if err != nil {
		return nil, err
	}
	b.write(" RETURNING ")
	b.writeList(typeinfo.Columns(returning))
	return &Bound{SQL: b.getSQL(), Args: args}, nil
}

// InsertIfMissing builds a statement inserting records into table, skipping
// the records that conflict on keyColumns.
func InsertIfMissing(table string, fields []*typeinfo.Field, records []reflect.Value, keyColumns []string) (*Bound, error) {
	if len(keyColumns) == 0 {
		return nil, fmt.Errorf("internal error: no conflict columns")
	}
	var b sqlBuilder
	args, err := writeValues(&b, table, fields, records)
	if err != nil {
		return nil, err
	}
	b.write(" ON CONFLICT (")
	b.writeList(keyColumns)
	b.write(") DO NOTHING")
	return &Bound{SQL: b.getSQL(), Args: args}, nil
}

// Upsert builds a statement inserting records into table and updating the
// rows that conflict on keyColumns. Every affected row is returned with a
// single boolean column "inserted" computed by the inserted predicate, which
// is true when the row did not exist before the statement.
func Upsert(table string, fields []*typeinfo.Field, records []reflect.Value, keyColumns []string, inserted string) (*Bound, error) {
	if len(keyColumns) == 0 {
		return nil, fmt.Errorf("internal error: no conflict columns")
	}
	if inserted == "" {
		return nil, fmt.Errorf("internal error: no inserted predicate")
	}
	var b sqlBuilder
	args, err := writeValues(&b, table, fields, records)
	if err != nil {
		return nil, err
	}

	isKey := make(map[string]bool, len(keyColumns))
	for _, k := range keyColumns {
		isKey[k] = true
	}
	var update []string
	for _, f := range fields {
		if !isKey[f.Column] {
			update = append(update, f.Column)
		}
	}
	// The update clause cannot be empty. Setting a key to itself keeps the
	// row unchanged while still returning it.
	if len(update) == 0 {
		update = keyColumns[:1]
	}

	b.write(" ON CONFLICT (")
	b.writeList(keyColumns)
	b.write(") DO UPDATE SET ")
	for i, col := range update {
		if i > 0 {
			b.write(", ")
		}
		b.write(col, " = excluded.", col)
	}
	b.write(" RETURNING ", inserted, " AS inserted")
	return &Bound{SQL: b.getSQL(), Args: args}, nil
}

// keyPredicate returns "key1 = @Key1 AND ..." for the key fields of info and
// the values of the keys in record.
func keyPredicate(info *typeinfo.Info, record reflect.Value) (string, []sql.NamedArg, error) {
	keys := info.Keys()
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("internal error: %s has no key fields", info.Type)
	}
	var b sqlBuilder
	b.writeEquals(keys, " AND ")
	args, err := Bind(keys, record, NoIndex)
	if err != nil {
		return "", nil, err
	}
	return b.getSQL(), args, nil
}

// Update builds "UPDATE table SET ... WHERE where". The SET clause assigns the
// fields of set from record; whereArgs are the arguments referenced by where.
func Update(table string, set []*typeinfo.Field, record reflect.Value, where string, whereArgs []sql.NamedArg) (*Bound, error) {
	if len(set) == 0 {
		return nil, fmt.Errorf("no writable columns to update in %s", table)
	}
	if strings.TrimSpace(where) == "" {
		return nil, fmt.Errorf("update of %s needs a predicate", table)
	}
	args, err := Bind(set, record, NoIndex)
	if err != nil {
		return nil, err
	}
	if args, err = Merge(args, whereArgs); err != nil {
		return nil, err
	}
	var b sqlBuilder
	b.write("UPDATE ", table, " SET ")
	b.writeEquals(set, ", ")
	b.write(" WHERE ", where)
	return &Bound{SQL: b.getSQL(), Args: args}, nil
}

// UpdateByKey builds a statement updating the non key writable fields of the
// row identified by record's key fields.
func UpdateByKey(info *typeinfo.Info, record reflect.Value) (*Bound, error) {
	where, whereArgs, err := keyPredicate(info, record)
	if err != nil {
		return nil, err
	}
	return Update(info.Table, info.Updatable(), record, where, whereArgs)
}

// Delete builds "DELETE FROM table WHERE where".
func Delete(table string, where string, args []sql.NamedArg) (*Bound, error) {
	if strings.TrimSpace(where) == "" {
		return nil, fmt.Errorf("delete from %s needs a predicate", table)
	}
	args, err := Merge(nil, args)
	if err != nil {
		return nil, err
	}
	return &Bound{SQL: "DELETE FROM " + table + " WHERE " + where, Args: args}, nil
}

// DeleteByKey builds a statement deleting the row identified by record's key
// fields.
func DeleteByKey(info *typeinfo.Info, record reflect.Value) (*Bound, error) {
	where, args, err := keyPredicate(info, record)
	if err != nil {
		return nil, err
	}
	return Delete(info.Table, where, args)
}
