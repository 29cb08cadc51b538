// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"strings"
	"unicode"
)

// ColumnName converts a Go identifier into a lowercase, underscore delimited
// column name. Surrounding whitespace is trimmed and an underscore is written
// before every upper case letter except the first character, so "FirstName"
// becomes "first_name". Upper case letters without a lower case form are kept
// as they are, without an underscore. The output of ColumnName is a fixed
// point: ColumnName(ColumnName(s)) == ColumnName(s).
func ColumnName(identifier string) string {
	s := strings.TrimSpace(identifier)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		lower := unicode.ToLower(r)
		if i > 0 && lower != r && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(lower)
	}
	return b.String()
}
