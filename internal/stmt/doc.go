// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package stmt synthesizes the SQL of object level statements and binds their
parameters.

Identifiers written into the SQL (tables and columns) come from type metadata
generated by package typeinfo, or are validated against the same rules by the
caller. Values are never written into the SQL; every value is referenced by a
named placeholder of the form @Name and carried alongside the SQL as a
sql.NamedArg. The dialect turns the placeholders into the form the driver
expects.

When a single statement holds several records the placeholders of the record
at batch index i are suffixed with "_i". ParamName is the only place this rule
is implemented, so the SQL text and the bound arguments always agree.
*/
package stmt
