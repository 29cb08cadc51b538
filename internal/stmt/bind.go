// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package stmt

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"

	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// NoIndex is passed as the batch index of statements that hold a single
// record. Their parameter names carry no suffix.
const NoIndex = -1

// ParamName returns the parameter name of a field parameter for the record at
// batch index i.
func ParamName(param string, i int) string {
	if i == NoIndex {
		return param
	}
	return param + "_" + strconv.Itoa(i)
}

// placeholder returns the placeholder written into the SQL for a parameter.
func placeholder(name string) string {
	return "@" + name
}

// Bind reads fields from the struct value record and returns them as named
// arguments for the record at batch index i.
func Bind(fields []*typeinfo.Field, record reflect.Value, i int) ([]sql.NamedArg, error) {
	args := make([]sql.NamedArg, 0, len(fields))
	for _, f := range fields {
		val, err := f.Value(record)
		if err != nil {
			return nil, fmt.Errorf("cannot bind field %s: %w", f.Name, err)
		}
		args = append(args, sql.Named(ParamName(f.Param, i), val))
	}
	return args, nil
}

// BindArguments binds every readable field of record, which is used when a
// value supplies the parameters of a query.
func BindArguments(info *typeinfo.Info, record reflect.Value) ([]sql.NamedArg, error) {
	return Bind(info.Arguments(), record, NoIndex)
}

// Merge appends extra to args. It returns an error if a name is bound twice.
func Merge(args []sql.NamedArg, extra []sql.NamedArg) ([]sql.NamedArg, error) {
	seen := make(map[string]bool, len(args)+len(extra))
	for _, a := range args {
		seen[a.Name] = true
	}
	for _, a := range extra {
		if a.Name == "" {
			return nil, fmt.Errorf("argument without a name")
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("parameter %q bound more than once", a.Name)
		}
		seen[a.Name] = true
		args = append(args, a)
	}
	return args, nil
}
