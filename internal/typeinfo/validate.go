// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"errors"
	"regexp"
)

// ErrInvalidIdentifier is returned when a table or column name supplied from
// outside the derived type metadata does not match the identifier rules.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// These expressions should be aligned with the output of ColumnName for ASCII
// identifiers. A table may carry a single schema qualifier.
var (
	validColumnRx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)
	validTableRx  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*(\.[a-zA-Z_][a-zA-Z_0-9]*)?$`)
)

// ValidColumn reports whether name can be written into generated SQL as a
// column identifier.
func ValidColumn(name string) bool {
	return validColumnRx.MatchString(name)
}

// ValidTable reports whether name can be written into generated SQL as a
// table identifier.
func ValidTable(name string) bool {
	return validTableRx.MatchString(name)
}
