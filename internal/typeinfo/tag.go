// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"strings"
)

// tagOptions holds the parsed content of a "db" struct tag.
type tagOptions struct {
	// column is the explicit column override, empty if the column name is
	// derived from the field name.
	column string

	skip      bool
	key       bool
	generated bool
	readonly  bool
	enum      bool
}

// parseTag parses a "db" tag of the form "column,option,...". The column may
// be empty to keep the derived name and "-" excludes the field.
func parseTag(tag string) (tagOptions, error) {
	var opts tagOptions
	if tag == "" {
		return opts, nil
	}
	if tag == "-" {
		opts.skip = true
		return opts, nil
	}

	parts := strings.Split(tag, ",")
	opts.column = strings.TrimSpace(parts[0])
	if opts.column != "" && !ValidColumn(opts.column) {
		return tagOptions{}, fmt.Errorf("%w: column %q in db tag", ErrInvalidIdentifier, opts.column)
	}
	for _, option := range parts[1:] {
		switch strings.ToLower(strings.TrimSpace(option)) {
		case "key":
			opts.key = true
		case "generated", "auto":
			opts.generated = true
		case "readonly":
			opts.readonly = true
		case "enum":
			opts.enum = true
		default:
			return tagOptions{}, fmt.Errorf("unexpected tag value %q", option)
		}
	}
	return opts, nil
}
