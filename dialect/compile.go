// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// resolve replaces the @name placeholders of query with $n ordinals and
// returns the arguments in ordinal order. It reuses the lexer of pgx, so
// placeholders inside string literals, quoted identifiers and comments are
// left alone.
func resolve(query string, args []sql.NamedArg, allowUnused bool) (string, []sql.NamedArg, error) {
	named := make(pgx.NamedArgs, len(args))
	for _, arg := range args {
		if arg.Name == "" {
			return "", nil, fmt.Errorf("argument without a name")
		}
		if _, ok := named[arg.Name]; ok {
			return "", nil, fmt.Errorf("parameter %q bound more than once", arg.Name)
		}
		// Wrapped so that a placeholder without an argument, which pgx
		// resolves to nil, is told apart from an argument set to nil.
		named[arg.Name] = arg
	}
	text, values, err := named.RewriteQuery(context.Background(), nil, query, nil)
	if err != nil {
		return "", nil, err
	}
	used := make([]sql.NamedArg, len(values))
	for i, v := range values {
		arg, ok := v.(sql.NamedArg)
		if !ok {
			return "", nil, fmt.Errorf("query parameter $%d has no argument", i+1)
		}
		used[i] = arg
	}
	if !allowUnused && len(used) != len(named) {
		return "", nil, fmt.Errorf("query uses %d of %d arguments", len(used), len(named))
	}
	return text, used, nil
}
