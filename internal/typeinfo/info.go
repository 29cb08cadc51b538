// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"strings"
)

// Field represents a single mapped field from a struct type.
type Field struct {
	Type reflect.Type

	// Name is the name of the struct field.
	Name string

	// Param is the parameter name used when the field is bound to a query.
	// It is the field name unless an embedded struct declares a field of the
	// same name.
	Param string

	// Column is the column the field is stored in.
	Column string

	// Index of this field in the structure, for reflect.Value.FieldByIndex.
	Index []int

	IsKey bool

	// IsGenerated is true when the backend produces the value. Generated
	// fields are never written and always read back after an insert.
	IsGenerated bool

	// IsWritable is true when the field is sent on insert and update. A
	// generated field is never writable.
	IsWritable bool

	IsReadable bool

	// IsStringEnum is true when the value is stored as its text form.
	IsStringEnum bool
}

// Info represents reflected information about a type mapped onto a table.
// An Info is immutable once it is returned from a Registry.
type Info struct {
	Type reflect.Type

	// Table is the table the type is stored in.
	Table string

	// Fields holds the mapped fields in declaration order.
	Fields []*Field

	keys      []*Field
	nonKeys   []*Field
	writable  []*Field
	updatable []*Field
	generated []*Field
	arguments []*Field

	// byColumn relates lower case column names to fields.
	byColumn map[string]*Field
}

// Keys returns the key fields in declaration order.
func (info *Info) Keys() []*Field { return info.keys }

// NonKeys returns the fields that are not part of the key.
func (info *Info) NonKeys() []*Field { return info.nonKeys }

// Writable returns the fields sent to the database on insert.
func (info *Info) Writable() []*Field { return info.writable }

// Updatable returns the writable fields that are not part of the key.
func (info *Info) Updatable() []*Field { return info.updatable }

// Generated returns the fields produced by the database.
func (info *Info) Generated() []*Field { return info.generated }

// Arguments returns the fields read when a value of the type supplies the
// parameters of a query.
func (info *Info) Arguments() []*Field { return info.arguments }

// HasKey reports whether the type declares at least one key field.
func (info *Info) HasKey() bool { return len(info.keys) > 0 }

// CheckTable returns an error matching ErrInvalidIdentifier if the table
// derived from the type name cannot be written into a statement, as happens
// for anonymous and generic types.
func (info *Info) CheckTable() error {
	if !ValidTable(info.Table) {
		return fmt.Errorf("%w: table %q of type %s", ErrInvalidIdentifier, info.Table, info.Type)
	}
	return nil
}

// FieldByColumn returns the field stored in column. The lookup ignores case.
func (info *Info) FieldByColumn(column string) (*Field, bool) {
	f, ok := info.byColumn[strings.ToLower(column)]
	return f, ok
}

// Columns returns the column names of fields.
func Columns(fields []*Field) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
	}
	return cols
}

// index computes the derived field views.
func (info *Info) index() {
	for _, f := range info.Fields {
		if f.IsKey {
			info.keys = append(info.keys, f)
		} else {
			info.nonKeys = append(info.nonKeys, f)
		}
		if f.IsWritable {
			info.writable = append(info.writable, f)
			if !f.IsKey {
				info.updatable = append(info.updatable, f)
			}
		}
		if f.IsGenerated {
			info.generated = append(info.generated, f)
		}
		if f.IsReadable {
			info.arguments = append(info.arguments, f)
		}
	}
}
