/*
Package sqlrecord stores Go structs in SQL tables without hand written SQL.

The statements for a struct type are synthesized from its fields: the table
and column names are derived from the Go names, and only values are passed
as query parameters. Table and column names never come from values supplied
at run time, which keeps the generated SQL free of injection.

# Records

A record is a struct whose exported fields map onto the columns of a table.
Given the following struct:

	type Person struct {
		ID        int64  `db:"id,key,generated"`
		FirstName string
		Email     *string
		Team      Team   `db:",enum"`
	}

the table is "person" and the columns are "id", "first_name", "email" and
"team". Names are derived by inserting an underscore before every upper case
letter but the first and lower casing the result, so "VisualStudio" becomes
"visual_studio". A type may implement TableName to name its table.

The db tag takes an optional column name followed by options:

  - key marks a field that identifies the row. Several fields may be keys.
  - generated, or auto, marks a field set by the database. It is never
    written and is read back after Insert.
  - readonly marks a field that is read but never written.
  - enum stores the value as text, using MarshalText or String when writing
    and UnmarshalText or the string kind when reading.

A field tagged "-" is ignored, as are unexported fields. The fields of
embedded structs are stored in the table of the struct embedding them. A
field of an embedded struct whose name is also declared elsewhere in the type
is bound to the parameter "<Embedded>_<Field>", such as @Meta_Name.

Nil pointers, maps, slices and interfaces are written as NULL. NULL is read
back as nil into those types and as the zero value into any other.

# Operations

The generic functions [Get], [Insert], [InsertMany], [InsertIfMissing],
[InsertManyIfMissing], [Upsert], [UpsertMany], [Update], [UpdateWhere],
[Delete] and [DeleteWhere] run on a [DB]. The operations identifying rows by
key return an error matching [ErrMissingKey] for types without key fields,
before any statement is sent to the database. Errors returned by the database
are passed to the caller unchanged.

Batches are inserted with multi-row statements. Each placeholder is named
after its field and suffixed with the index of the record in the statement,
as in @FirstName_0, @FirstName_1.

# Queries

[Query] reads rows into records or single column values, [DB.QueryAssoc]
into maps keyed by column name and [DB.QueryArray] into slices of column
values. [DB.Iter] returns an [Iterator] over the rows of a query:

	iter := db.Iter(ctx, "SELECT * FROM person WHERE team = @Team", sql.Named("Team", "eng"))
	defer iter.Close()
	for iter.Next() {
		var p Person
		if err := iter.Get(&p); err != nil {
			return err
		}
	}
	return iter.Close()

Query parameters are written @Name and supplied as sql.NamedArg values, maps
with string keys, or records whose fields supply parameters named after
them.
*/
package sqlrecord
