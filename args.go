// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"

	"github.com/canonical/sqlrecord/internal/stmt"
	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// queryArgs holds the arguments of a caller supplied query.
type queryArgs struct {
	named      []sql.NamedArg
	positional []any
	// partial is set when a record supplied arguments. A query is not
	// expected to use every field of a record, so unused arguments are
	// dropped.
	partial bool
}

// bindArgs sorts the arguments of a query. sql.NamedArg values and maps with
// string keys supply named arguments. Records supply an argument per
// readable field, named after the field. Any other value is a positional
// argument, passed to the driver as is.
func (db *DB) bindArgs(args []any) (*queryArgs, error) {
	qa := &queryArgs{}
	for i, arg := range args {
		switch a := arg.(type) {
		case sql.NamedArg:
			qa.named = append(qa.named, a)
			continue
		case map[string]any:
			qa.named = appendMap(qa.named, reflect.ValueOf(a))
			continue
		}

		v := reflect.ValueOf(arg)
		if v.Kind() == reflect.Pointer && !v.IsNil() && typeinfo.IsRecord(v.Type().Elem()) {
			v = v.Elem()
		}
		switch {
		case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
			qa.named = appendMap(qa.named, v)
		case v.IsValid() && typeinfo.IsRecord(v.Type()):
			info, err := db.registry.TypeInfo(v.Type())
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			fieldArgs, err := stmt.BindArguments(info, v)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			qa.named = append(qa.named, fieldArgs...)
			qa.partial = true
		default:
			qa.positional = append(qa.positional, arg)
		}
	}
	if len(qa.named) > 0 && len(qa.positional) > 0 {
		return nil, fmt.Errorf("cannot mix named and positional arguments")
	}
	return qa, nil
}

// appendMap appends the entries of a map with string keys, in key order.
func appendMap(named []sql.NamedArg, m reflect.Value) []sql.NamedArg {
	keys := m.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		named = append(named, sql.Named(k.String(), m.MapIndex(k).Interface()))
	}
	return named
}

// compileQuery renders a caller supplied query and its arguments for the
// driver. Queries with positional arguments only are passed through.
func (db *DB) compileQuery(query string, args []any) (string, []any, error) {
	qa, err := db.bindArgs(args)
	if err != nil {
		return "", nil, err
	}
	if len(qa.named) == 0 {
		return query, qa.positional, nil
	}
	return db.dialect.Compile(query, qa.named, qa.partial)
}
