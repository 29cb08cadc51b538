// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	. "gopkg.in/check.v1"
	_ "modernc.org/sqlite"

	"github.com/canonical/sqlrecord"
	"github.com/canonical/sqlrecord/dialect"
)

type PackageSuite struct {
	sqldb *sql.DB
	db    *sqlrecord.DB
}

var _ = Suite(&PackageSuite{})

type Team int

const (
	Engineering Team = iota
	Sales
)

func (t Team) MarshalText() ([]byte, error) {
	switch t {
	case Engineering:
		return []byte("engineering"), nil
	case Sales:
		return []byte("sales"), nil
	}
	return nil, fmt.Errorf("unknown team %d", t)
}

func (t *Team) UnmarshalText(text []byte) error {
	switch string(text) {
	case "engineering":
		*t = Engineering
	case "sales":
		*t = Sales
	default:
		return fmt.Errorf("unknown team %q", text)
	}
	return nil
}

type Person struct {
	ID        int64 `db:"id,key,generated"`
	FirstName string
	LastName  string `db:"surname"`
	Email     *string
	Team      Team `db:",enum"`
}

type Tag struct {
	Name string `db:"name,key"`
	Uses int
}

type Note struct {
	Body string
}

type Membership struct {
	Club   string `db:"club,key"`
	Member int    `db:"member,key"`
	Level  int
}

type Device struct {
	ID    uuid.UUID `db:"id,key"`
	Label string
}

type Revision struct {
	Name   string
	Number int
}

// Doc declares Name twice. The outer field keeps the parameter name.
type Doc struct {
	ID int64 `db:"id,key"`
	Revision
	Name string `db:"title"`
}

type Box[T any] struct {
	ID    int `db:"id,key"`
	Value T
}

// Audit is stored in the table of Note, alongside a column it does not map.
type Audit struct {
	Body string
}

func (Audit) TableName() string { return "note" }

const schema = `
CREATE TABLE person (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name TEXT NOT NULL,
	surname TEXT NOT NULL DEFAULT '',
	email TEXT,
	team TEXT
);
CREATE TABLE tag (
	name TEXT PRIMARY KEY,
	uses INTEGER NOT NULL
);
CREATE TABLE note (
	body TEXT,
	created TEXT DEFAULT 'now'
);
CREATE TABLE membership (
	club TEXT,
	member INTEGER,
	level INTEGER,
	PRIMARY KEY (club, member)
);
CREATE TABLE doc (
	id INTEGER PRIMARY KEY,
	name TEXT,
	number INTEGER,
	title TEXT
);
CREATE TABLE device (
	id TEXT PRIMARY KEY,
	label TEXT
);
`

func (s *PackageSuite) SetUpTest(c *C) {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	// Every connection to :memory: opens a new database.
	sqldb.SetMaxOpenConns(1)
	_, err = sqldb.Exec(schema)
	c.Assert(err, IsNil)

	s.sqldb = sqldb
	s.db, err = sqlrecord.NewDB(sqldb, dialect.SQLite)
	c.Assert(err, IsNil)
}

func (s *PackageSuite) TearDownTest(c *C) {
	c.Assert(s.db.Close(), IsNil)
	c.Assert(s.sqldb.Close(), IsNil)
}

func ptr[T any](v T) *T { return &v }

func (s *PackageSuite) TestInsertSetsGeneratedKey(c *C) {
	ctx := context.Background()
	fred := Person{FirstName: "Fred"}
	n, err := sqlrecord.Insert(ctx, s.db, &fred)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))
	c.Check(fred.ID > 0, Equals, true)

	mary := Person{FirstName: "Mary"}
	_, err = sqlrecord.Insert(ctx, s.db, &mary)
	c.Assert(err, IsNil)
	c.Check(mary.ID > fred.ID, Equals, true)
}

func (s *PackageSuite) TestGet(c *C) {
	ctx := context.Background()
	fred := Person{FirstName: "Fred", LastName: "Jones", Email: ptr("fred@example.com"), Team: Sales}
	_, err := sqlrecord.Insert(ctx, s.db, &fred)
	c.Assert(err, IsNil)

	got, err := sqlrecord.Get[Person](ctx, s.db, fred.ID)
	c.Assert(err, IsNil)
	c.Check(*got, DeepEquals, fred)

	_, err = sqlrecord.Get[Person](ctx, s.db, fred.ID+100)
	c.Check(errors.Is(err, sqlrecord.ErrNoRows), Equals, true)
}

func (s *PackageSuite) TestGetCompositeKey(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.InsertMany(ctx, s.db, []Membership{{"chess", 1, 2}, {"chess", 2, 3}, {"go", 1, 4}})
	c.Assert(err, IsNil)

	got, err := sqlrecord.Get[Membership](ctx, s.db, "chess", 2)
	c.Assert(err, IsNil)
	c.Check(*got, DeepEquals, Membership{"chess", 2, 3})
}

func (s *PackageSuite) TestGetKeyArity(c *C) {
	_, err := sqlrecord.Get[Person](context.Background(), s.db, 1, 2)
	c.Assert(err, ErrorMatches, `cannot get sqlrecord_test.Person: type has 1 key fields, got 2 ids`)
	c.Check(errors.Is(err, sqlrecord.ErrKeyArity), Equals, true)

	var arityErr *sqlrecord.KeyArityMismatchError
	c.Assert(errors.As(err, &arityErr), Equals, true)
	c.Check(arityErr.Want, Equals, 1)
	c.Check(arityErr.Got, Equals, 2)
	c.Check(s.db.Stats().Queries, Equals, int64(0))
}

func (s *PackageSuite) TestMissingKeyFailsFast(c *C) {
	ctx := context.Background()
	note := Note{Body: "hello"}

	_, err := sqlrecord.Get[Note](ctx, s.db)
	c.Check(errors.Is(err, sqlrecord.ErrMissingKey), Equals, true)
	_, err = sqlrecord.Update(ctx, s.db, &note)
	c.Check(errors.Is(err, sqlrecord.ErrMissingKey), Equals, true)
	_, err = sqlrecord.Delete(ctx, s.db, &note)
	c.Check(errors.Is(err, sqlrecord.ErrMissingKey), Equals, true)
	_, err = sqlrecord.Upsert(ctx, s.db, &note)
	c.Check(errors.Is(err, sqlrecord.ErrMissingKey), Equals, true)
	_, err = sqlrecord.InsertIfMissing(ctx, s.db, &note)
	c.Check(errors.Is(err, sqlrecord.ErrMissingKey), Equals, true)
	c.Check(err, ErrorMatches, `cannot insert if missing sqlrecord_test.Note: type has no key fields`)

	var keyErr *sqlrecord.MissingKeyError
	c.Assert(errors.As(err, &keyErr), Equals, true)
	c.Check(keyErr.Op, Equals, "insert if missing")

	stats := s.db.Stats()
	c.Check(stats.Queries+stats.Execs, Equals, int64(0))

	// A type without keys can still be inserted and queried.
	n, err := sqlrecord.Insert(ctx, s.db, &note)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))
	notes, err := sqlrecord.Query[Note](ctx, s.db, "SELECT * FROM note")
	c.Assert(err, IsNil)
	c.Check(notes, DeepEquals, []Note{note})
}

func (s *PackageSuite) TestNullRoundTrip(c *C) {
	ctx := context.Background()
	p := Person{FirstName: "Fred"}
	_, err := sqlrecord.Insert(ctx, s.db, &p)
	c.Assert(err, IsNil)

	isNull, err := sqlrecord.Scalar[bool](ctx, s.db, "SELECT email IS NULL FROM person WHERE id = @ID", sql.Named("ID", p.ID))
	c.Assert(err, IsNil)
	c.Check(isNull, Equals, true)

	got, err := sqlrecord.Get[Person](ctx, s.db, p.ID)
	c.Assert(err, IsNil)
	c.Check(got.Email, IsNil)

	// NULL read into a field that cannot be nil leaves its zero value.
	_, err = s.db.Exec(ctx, "UPDATE person SET team = NULL WHERE id = @ID", sql.Named("ID", p.ID))
	c.Assert(err, IsNil)
	got, err = sqlrecord.Get[Person](ctx, s.db, p.ID)
	c.Assert(err, IsNil)
	c.Check(got.Team, Equals, Engineering)

	rows, err := s.db.QueryAssoc(ctx, "SELECT email FROM person")
	c.Assert(err, IsNil)
	c.Check(rows, DeepEquals, []map[string]any{{"email": nil}})
}

func (s *PackageSuite) TestEnumStoredAsText(c *C) {
	ctx := context.Background()
	p := Person{FirstName: "Sue", Team: Sales}
	_, err := sqlrecord.Insert(ctx, s.db, &p)
	c.Assert(err, IsNil)

	team, err := sqlrecord.Scalar[string](ctx, s.db, "SELECT team FROM person WHERE id = ?", p.ID)
	c.Assert(err, IsNil)
	c.Check(team, Equals, "sales")

	_, err = s.db.Exec(ctx, "UPDATE person SET team = 'marketing'")
	c.Assert(err, IsNil)
	_, err = sqlrecord.Get[Person](ctx, s.db, p.ID)
	c.Check(err, ErrorMatches, `cannot get result: unknown team "marketing"`)
}

func (s *PackageSuite) TestInsertManyIfMissing(c *C) {
	ctx := context.Background()
	tags := make([]Tag, 100)
	for i := range tags {
		tags[i] = Tag{Name: fmt.Sprintf("tag%03d", i), Uses: i}
	}

	n, err := sqlrecord.InsertManyIfMissing(ctx, s.db, tags[:25])
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(25))

	n, err = sqlrecord.InsertManyIfMissing(ctx, s.db, tags)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(75))

	count, err := sqlrecord.Scalar[int](ctx, s.db, "SELECT COUNT(*) FROM tag")
	c.Assert(err, IsNil)
	c.Check(count, Equals, 100)

	n, err = sqlrecord.InsertIfMissing(ctx, s.db, &Tag{Name: "tag000", Uses: 1000})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(0))
	got, err := sqlrecord.Get[Tag](ctx, s.db, "tag000")
	c.Assert(err, IsNil)
	c.Check(got.Uses, Equals, 0)
}

// smallDialect limits statements to a few parameters.
type smallDialect struct {
	dialect.Dialect
}

func (smallDialect) MaxParams() int { return 10 }

func (s *PackageSuite) TestInsertManySplitsStatements(c *C) {
	ctx := context.Background()
	db, err := sqlrecord.NewDB(s.sqldb, smallDialect{dialect.SQLite})
	c.Assert(err, IsNil)

	tags := make([]*Tag, 12)
	for i := range tags {
		tags[i] = &Tag{Name: fmt.Sprintf("tag%d", i), Uses: i}
	}
	n, err := sqlrecord.InsertMany(ctx, db, tags)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(12))
	// Five records of two parameters fit in a statement.
	c.Check(db.Stats().Execs, Equals, int64(3))

	got, err := sqlrecord.Query[Tag](ctx, db, "SELECT * FROM tag ORDER BY uses")
	c.Assert(err, IsNil)
	c.Assert(got, HasLen, 12)
	for i, tag := range got {
		c.Check(tag, DeepEquals, *tags[i])
	}
}

func (s *PackageSuite) TestInsertManyEmpty(c *C) {
	n, err := sqlrecord.InsertMany(context.Background(), s.db, []Tag{})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(0))
	c.Check(s.db.Stats().Execs, Equals, int64(0))
}

func (s *PackageSuite) TestInsertManyHeterogeneous(c *C) {
	_, err := sqlrecord.InsertMany(context.Background(), s.db, []any{Tag{Name: "a"}, Note{Body: "b"}})
	c.Check(errors.Is(err, sqlrecord.ErrHeterogeneousBatch), Equals, true)

	_, err = sqlrecord.InsertMany(context.Background(), s.db, []*Tag{{Name: "a"}, nil})
	c.Check(err, ErrorMatches, "cannot insert: got nil record at index 1")
	c.Check(s.db.Stats().Execs, Equals, int64(0))
}

func (s *PackageSuite) TestEmbeddedFieldSharingName(c *C) {
	ctx := context.Background()
	docs := []Doc{
		{ID: 1, Revision: Revision{Name: "draft", Number: 1}, Name: "Intro"},
		{ID: 2, Revision: Revision{Name: "final", Number: 3}, Name: "Outro"},
	}
	n, err := sqlrecord.InsertMany(ctx, s.db, docs)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	got, err := sqlrecord.Get[Doc](ctx, s.db, int64(2))
	c.Assert(err, IsNil)
	c.Check(*got, DeepEquals, docs[1])

	found, err := sqlrecord.Query[Doc](ctx, s.db, "SELECT * FROM doc WHERE title = @Name AND name = @Revision_Name", Doc{
		Revision: Revision{Name: "draft"},
		Name:     "Intro",
	})
	c.Assert(err, IsNil)
	c.Check(found, DeepEquals, docs[:1])
}

func (s *PackageSuite) TestDerivedTableChecked(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.Get[Box[int]](ctx, s.db, 1)
	c.Check(errors.Is(err, sqlrecord.ErrInvalidIdentifier), Equals, true)
	_, err = sqlrecord.Insert(ctx, s.db, &Box[string]{ID: 1})
	c.Check(errors.Is(err, sqlrecord.ErrInvalidIdentifier), Equals, true)
	_, err = sqlrecord.InsertMany(ctx, s.db, []struct{ Name string }{{"a"}})
	c.Check(errors.Is(err, sqlrecord.ErrInvalidIdentifier), Equals, true)
	_, err = sqlrecord.DeleteWhere[struct{ Name string }](ctx, s.db, "name = @Name", sql.Named("Name", "a"))
	c.Check(errors.Is(err, sqlrecord.ErrInvalidIdentifier), Equals, true)

	stats := s.db.Stats()
	c.Check(stats.Queries+stats.Execs, Equals, int64(0))

	// Types without a table of their own still receive query results.
	_, err = sqlrecord.Insert(ctx, s.db, &Tag{Name: "a", Uses: 1})
	c.Assert(err, IsNil)
	rows, err := sqlrecord.Query[struct{ Name string }](ctx, s.db, "SELECT name FROM tag")
	c.Assert(err, IsNil)
	c.Check(rows, HasLen, 1)
	c.Check(rows[0].Name, Equals, "a")

	// So does a generic type, and it can be stored under an explicit table.
	_, err = s.db.Exec(ctx, "CREATE TABLE box (id INTEGER PRIMARY KEY, value TEXT)")
	c.Assert(err, IsNil)
	_, err = s.db.InsertInto(ctx, "box", Box[string]{ID: 1, Value: "x"})
	c.Assert(err, IsNil)
	boxes, err := sqlrecord.Query[Box[string]](ctx, s.db, "SELECT * FROM box")
	c.Assert(err, IsNil)
	c.Check(boxes, DeepEquals, []Box[string]{{ID: 1, Value: "x"}})
}

func (s *PackageSuite) TestEmptyBatchOfKeylessType(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.InsertManyIfMissing(ctx, s.db, []Note{})
	c.Check(errors.Is(err, sqlrecord.ErrMissingKey), Equals, true)
	_, err = sqlrecord.UpsertMany(ctx, s.db, []*Note(nil))
	c.Check(errors.Is(err, sqlrecord.ErrMissingKey), Equals, true)

	n, err := sqlrecord.InsertManyIfMissing(ctx, s.db, []Tag{})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(0))
	n, err = sqlrecord.InsertManyIfMissing(ctx, s.db, []any{})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(0))
}

func (s *PackageSuite) TestUpsertUnsupported(c *C) {
	_, err := sqlrecord.Upsert(context.Background(), s.db, &Tag{Name: "a"})
	c.Check(errors.Is(err, sqlrecord.ErrUpsertUnsupported), Equals, true)
	c.Check(s.db.Stats().Queries, Equals, int64(0))
}

func (s *PackageSuite) TestUpdate(c *C) {
	ctx := context.Background()
	p := Person{FirstName: "Fred", LastName: "Jones"}
	_, err := sqlrecord.Insert(ctx, s.db, &p)
	c.Assert(err, IsNil)

	p.LastName = "Smith"
	p.Email = ptr("fred@example.com")
	n, err := sqlrecord.Update(ctx, s.db, &p)
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))

	got, err := sqlrecord.Get[Person](ctx, s.db, p.ID)
	c.Assert(err, IsNil)
	c.Check(*got, DeepEquals, p)

	n, err = sqlrecord.Update(ctx, s.db, &Person{ID: p.ID + 1, FirstName: "Nobody"})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(0))
}

func (s *PackageSuite) TestUpdateWhere(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.InsertMany(ctx, s.db, []Tag{{"a", 1}, {"b", 2}, {"c", 3}})
	c.Assert(err, IsNil)

	n, err := sqlrecord.UpdateWhere(ctx, s.db, &Tag{Name: "z", Uses: 0}, "uses >= @Min", sql.Named("Min", 3))
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))

	n, err = sqlrecord.UpdateWhere(ctx, s.db, &Membership{Level: 1}, "level > @Level", map[string]any{"Level": 0})
	c.Check(err, ErrorMatches, `parameter "Level" bound more than once`)
	c.Check(n, Equals, int64(0))

	_, err = sqlrecord.UpdateWhere(ctx, s.db, &Tag{}, "uses = ?", 1)
	c.Check(err, ErrorMatches, "cannot update tag: predicate arguments must be named")

	tags, err := sqlrecord.Query[Tag](ctx, s.db, "SELECT * FROM tag ORDER BY name")
	c.Assert(err, IsNil)
	c.Check(tags, DeepEquals, []Tag{{"a", 1}, {"b", 2}, {"z", 0}})
}

func (s *PackageSuite) TestDelete(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.InsertMany(ctx, s.db, []Tag{{"a", 1}, {"b", 2}, {"c", 3}, {"d", 4}})
	c.Assert(err, IsNil)

	n, err := sqlrecord.Delete(ctx, s.db, &Tag{Name: "a"})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))

	n, err = sqlrecord.DeleteWhere[Tag](ctx, s.db, "uses > @Uses", Tag{Uses: 2})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	names, err := sqlrecord.Query[string](ctx, s.db, "SELECT name FROM tag")
	c.Assert(err, IsNil)
	c.Check(names, DeepEquals, []string{"b"})

	_, err = sqlrecord.DeleteWhere[Tag](ctx, s.db, "")
	c.Check(err, ErrorMatches, "delete from tag needs a predicate")
}

func (s *PackageSuite) TestUUIDKey(c *C) {
	ctx := context.Background()
	d := Device{ID: uuid.New(), Label: "sensor"}
	_, err := sqlrecord.Insert(ctx, s.db, &d)
	c.Assert(err, IsNil)

	got, err := sqlrecord.Get[Device](ctx, s.db, d.ID)
	c.Assert(err, IsNil)
	c.Check(*got, DeepEquals, d)
}

func (s *PackageSuite) TestQueryForms(c *C) {
	ctx := context.Background()
	people := []Person{
		{FirstName: "Fred", LastName: "Jones", Team: Sales},
		{FirstName: "Mary", LastName: "Smith", Email: ptr("mary@example.com")},
	}
	for i := range people {
		_, err := sqlrecord.Insert(ctx, s.db, &people[i])
		c.Assert(err, IsNil)
	}

	records, err := sqlrecord.Query[Person](ctx, s.db, "SELECT * FROM person ORDER BY id")
	c.Assert(err, IsNil)
	c.Check(records, DeepEquals, people)

	pointers, err := sqlrecord.Query[*Person](ctx, s.db, "SELECT * FROM person WHERE first_name = @FirstName", Person{FirstName: "Mary"})
	c.Assert(err, IsNil)
	c.Assert(pointers, HasLen, 1)
	c.Check(*pointers[0], DeepEquals, people[1])

	assoc, err := s.db.QueryAssoc(ctx, "SELECT first_name, email FROM person ORDER BY id")
	c.Assert(err, IsNil)
	c.Check(assoc, DeepEquals, []map[string]any{
		{"first_name": "Fred", "email": nil},
		{"first_name": "Mary", "email": "mary@example.com"},
	})

	arrays, err := s.db.QueryArray(ctx, "SELECT id, first_name, email FROM person ORDER BY id")
	c.Assert(err, IsNil)
	c.Check(arrays, DeepEquals, [][]any{
		{people[0].ID, "Fred", nil},
		{people[1].ID, "Mary", "mary@example.com"},
	})

	// Columns without a field are dropped.
	_, err = s.db.Exec(ctx, "INSERT INTO note (body) VALUES ('x')")
	c.Assert(err, IsNil)
	audits, err := sqlrecord.Query[Audit](ctx, s.db, "SELECT * FROM note")
	c.Assert(err, IsNil)
	c.Check(audits, DeepEquals, []Audit{{Body: "x"}})

	empty, err := sqlrecord.Query[Person](ctx, s.db, "SELECT * FROM person WHERE id < 0")
	c.Assert(err, IsNil)
	c.Check(empty, HasLen, 0)
}

func (s *PackageSuite) TestQueryArgumentErrors(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.Query[Person](ctx, s.db, "SELECT * FROM person WHERE id = @ID AND first_name = ?", sql.Named("ID", 1), "Fred")
	c.Check(err, ErrorMatches, "cannot mix named and positional arguments")

	_, err = sqlrecord.Query[Person](ctx, s.db, "SELECT * FROM person WHERE id = @ID AND first_name = @Name", sql.Named("ID", 1))
	c.Check(err, ErrorMatches, `query parameter \$2 has no argument`)

	_, err = sqlrecord.Query[Person](ctx, s.db, "SELECT * FROM person WHERE id = @ID", map[string]any{"ID": 1, "Other": 2})
	c.Check(err, ErrorMatches, "query uses 1 of 2 arguments")
	c.Check(s.db.Stats().Queries, Equals, int64(0))
}

func (s *PackageSuite) TestScalar(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.Scalar[int](ctx, s.db, "SELECT uses FROM tag")
	c.Check(errors.Is(err, sqlrecord.ErrNoRows), Equals, true)

	// NULL is read as the zero value.
	total, err := sqlrecord.Scalar[int](ctx, s.db, "SELECT SUM(uses) FROM tag")
	c.Assert(err, IsNil)
	c.Check(total, Equals, 0)

	name, err := sqlrecord.Scalar[*string](ctx, s.db, "SELECT NULL, 1")
	c.Assert(err, IsNil)
	c.Check(name, IsNil)
}

func (s *PackageSuite) TestIterMethodOrder(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.InsertMany(ctx, s.db, []Tag{{"a", 1}, {"b", 2}})
	c.Assert(err, IsNil)

	var tag Tag
	// Check immediate Get.
	iter := s.db.Iter(ctx, "SELECT * FROM tag")
	c.Assert(iter.Get(&tag), ErrorMatches, "cannot get result: cannot call Get before Next")
	c.Assert(iter.Close(), IsNil)

	// Check Next after closing.
	iter = s.db.Iter(ctx, "SELECT * FROM tag")
	c.Assert(iter.Close(), IsNil)
	c.Assert(iter.Next(), Equals, false)
	c.Assert(iter.Close(), IsNil)

	// Check Get after closing.
	iter = s.db.Iter(ctx, "SELECT * FROM tag")
	c.Assert(iter.Close(), IsNil)
	c.Assert(iter.Get(&tag), ErrorMatches, "cannot get result: iteration ended")

	// Check the iterator is single pass.
	iter = s.db.Iter(ctx, "SELECT * FROM tag ORDER BY name")
	c.Check(iter.Columns(), DeepEquals, []string{"name", "uses"})
	var names []string
	for iter.Next() {
		var row []any
		c.Assert(iter.Get(&row), IsNil)
		names = append(names, row[0].(string))
	}
	c.Assert(iter.Close(), IsNil)
	c.Check(names, DeepEquals, []string{"a", "b"})
	c.Check(iter.Next(), Equals, false)

	// Check get errors.
	iter = s.db.Iter(ctx, "SELECT * FROM tag")
	c.Assert(iter.Next(), Equals, true)
	c.Check(iter.Get(tag), ErrorMatches, "cannot get result: need pointer, got struct")
	c.Check(iter.Get((*Tag)(nil)), ErrorMatches, "cannot get result: got nil pointer")
	var name string
	c.Check(iter.Get(&name), ErrorMatches, "cannot get result: cannot scan 2 columns into string")
	c.Assert(iter.Close(), IsNil)

	// Check query errors are returned by Close.
	iter = s.db.Iter(ctx, "SELECT * FROM missing")
	c.Assert(iter.Next(), Equals, false)
	c.Assert(iter.Close(), ErrorMatches, "no such table: missing")
}

func (s *PackageSuite) TestCancelledContext(c *C) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tags, err := sqlrecord.Query[Tag](ctx, s.db, "SELECT * FROM tag")
	c.Check(errors.Is(err, context.Canceled), Equals, true)
	c.Check(tags, IsNil)
}

func (s *PackageSuite) TestBackendErrorUnchanged(c *C) {
	ctx := context.Background()
	_, err := sqlrecord.Insert(ctx, s.db, &Tag{Name: "a"})
	c.Assert(err, IsNil)

	_, err = sqlrecord.Insert(ctx, s.db, &Tag{Name: "a"})
	c.Assert(err, NotNil)
	var sqliteErr sqlite3.Error
	c.Assert(errors.As(err, &sqliteErr), Equals, true)
	c.Check(err, Equals, error(sqliteErr))
	c.Check(dialect.IsUniqueViolation(err), Equals, true)

	_, err = s.db.Exec(ctx, "INSERT INTO person (first_name) VALUES (NULL)")
	c.Check(dialect.IsNotNullViolation(err), Equals, true)
}

func (s *PackageSuite) TestTransactions(c *C) {
	ctx := context.Background()

	tx, err := s.db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	_, err = sqlrecord.Insert(ctx, tx.DB, &Tag{Name: "rolled back"})
	c.Assert(err, IsNil)
	c.Assert(tx.Rollback(), IsNil)
	c.Assert(tx.Rollback(), Equals, sqlrecord.ErrTXDone)

	_, err = sqlrecord.Get[Tag](ctx, s.db, "rolled back")
	c.Check(errors.Is(err, sqlrecord.ErrNoRows), Equals, true)

	tx, err = s.db.Begin(ctx, &sqlrecord.TXOptions{})
	c.Assert(err, IsNil)
	_, err = sqlrecord.Insert(ctx, tx.DB, &Tag{Name: "committed"})
	c.Assert(err, IsNil)
	c.Assert(tx.Commit(), IsNil)

	_, err = sqlrecord.Get[Tag](ctx, s.db, "committed")
	c.Check(err, IsNil)

	// Statement counts are shared with the transaction.
	c.Check(s.db.Stats().Execs, Equals, int64(2))
}

func (s *PackageSuite) TestWithConn(c *C) {
	ctx := context.Background()
	sqltx, err := s.sqldb.BeginTx(ctx, nil)
	c.Assert(err, IsNil)

	txdb := s.db.WithConn(sqltx)
	c.Check(txdb.Registry(), Equals, s.db.Registry())
	_, err = sqlrecord.Insert(ctx, txdb, &Tag{Name: "a"})
	c.Assert(err, IsNil)
	c.Assert(txdb.Close(), IsNil)
	c.Assert(sqltx.Commit(), IsNil)

	got, err := sqlrecord.Get[Tag](ctx, s.db, "a")
	c.Assert(err, IsNil)
	c.Check(got.Name, Equals, "a")
}

func (s *PackageSuite) TestTableOperations(c *C) {
	ctx := context.Background()
	_, err := s.db.Exec(ctx, "CREATE TABLE archived_tag (name TEXT PRIMARY KEY, uses INTEGER NOT NULL)")
	c.Assert(err, IsNil)

	n, err := s.db.InsertInto(ctx, "archived_tag", Tag{"a", 1}, &Tag{"b", 2})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	n, err = s.db.InsertIntoIfMissing(ctx, "archived_tag", []string{"name"}, Tag{"b", 5}, Tag{"c", 3})
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))

	_, err = s.db.UpsertInto(ctx, "archived_tag", []string{"name"}, Tag{"a", 9})
	c.Check(errors.Is(err, sqlrecord.ErrUpsertUnsupported), Equals, true)

	_, err = s.db.InsertInto(ctx, "archived_tag; DROP TABLE tag", Tag{"d", 4})
	c.Check(errors.Is(err, sqlrecord.ErrInvalidIdentifier), Equals, true)
	_, err = s.db.InsertIntoIfMissing(ctx, "archived_tag", []string{"name) DO NOTHING; --"}, Tag{"d", 4})
	c.Check(errors.Is(err, sqlrecord.ErrInvalidIdentifier), Equals, true)
	_, err = s.db.InsertIntoIfMissing(ctx, "archived_tag", nil, Tag{"d", 4})
	c.Check(errors.Is(err, sqlrecord.ErrMissingKey), Equals, true)

	rows, err := s.db.QueryArray(ctx, "SELECT name, uses FROM archived_tag ORDER BY name")
	c.Assert(err, IsNil)
	c.Check(rows, DeepEquals, [][]any{{"a", int64(1)}, {"b", int64(2)}, {"c", int64(3)}})
}

func (s *PackageSuite) TestLogging(c *C) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	db, err := sqlrecord.NewDB(s.sqldb, dialect.SQLite, sqlrecord.WithLogger(zap.New(core)))
	c.Assert(err, IsNil)

	_, err = sqlrecord.Insert(ctx, db, &Tag{Name: "a"})
	c.Assert(err, IsNil)
	_, err = sqlrecord.Query[Tag](ctx, db, "SELECT * FROM missing")
	c.Assert(err, NotNil)

	entries := logs.AllUntimed()
	c.Assert(entries, HasLen, 2)
	c.Check(entries[0].Message, Equals, "exec")
	c.Check(entries[0].ContextMap()["sql"], Equals, "INSERT INTO tag (name, uses) VALUES (@Name_0, @Uses_0)")
	c.Check(entries[0].ContextMap()["params"], Equals, int64(2))
	c.Check(entries[0].ContextMap()["dialect"], Equals, "sqlite")
	c.Check(entries[1].Message, Equals, "query failed")

	stats := db.Stats()
	c.Check(stats.Execs, Equals, int64(1))
	c.Check(stats.Queries, Equals, int64(1))
	c.Check(stats.Errors, Equals, int64(1))
}

func (s *PackageSuite) TestSlowThreshold(c *C) {
	core, logs := observer.New(zap.WarnLevel)
	db, err := sqlrecord.NewDB(s.sqldb, dialect.SQLite,
		sqlrecord.WithLogger(zap.New(core)),
		sqlrecord.WithSlowThreshold(time.Nanosecond),
	)
	c.Assert(err, IsNil)

	_, err = sqlrecord.Query[Tag](context.Background(), db, "SELECT * FROM tag")
	c.Assert(err, IsNil)
	c.Assert(logs.FilterMessage("slow query").Len(), Equals, 1)

	stats := db.Stats()
	c.Check(stats.SlowQueries, Equals, int64(1))
	c.Check(stats.AvgDuration() > 0, Equals, true)
	c.Check(stats.String(), Matches, `queries=1 execs=0 rows=0 duration=.* slow=1 errors=0`)
}

func (s *PackageSuite) TestOpen(c *C) {
	db, err := sqlrecord.Open("sqlite", ":memory:")
	c.Assert(err, IsNil)
	c.Check(db.Dialect(), Equals, dialect.SQLite)
	n, err := sqlrecord.Scalar[int](context.Background(), db, "SELECT 1 + 1")
	c.Assert(err, IsNil)
	c.Check(n, Equals, 2)
	c.Assert(db.Close(), IsNil)

	_, err = sqlrecord.Open("unknown", "")
	c.Check(err, ErrorMatches, `sql: unknown driver "unknown" \(forgotten import\?\)`)
}

func (s *PackageSuite) TestColumnName(c *C) {
	c.Check(sqlrecord.ColumnName(" VisualStudio "), Equals, "visual_studio")
	c.Check(sqlrecord.ColumnName(sqlrecord.ColumnName("FirstName")), Equals, "first_name")

	info, err := s.db.Registry().TypeInfo(reflect.TypeOf(Person{}))
	c.Assert(err, IsNil)
	again, err := s.db.Registry().ValueInfo(&Person{})
	c.Assert(err, IsNil)
	c.Check(info == again, Equals, true)
	c.Check(info.Table, Equals, "person")

	var columns []string
	for _, f := range info.Writable() {
		columns = append(columns, f.Column)
	}
	c.Check(columns, DeepEquals, []string{"first_name", "surname", "email", "team"})
	c.Check(info.Generated()[0].Name, Equals, "ID")
}
