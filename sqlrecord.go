// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/canonical/sqlrecord/dialect"
	"github.com/canonical/sqlrecord/internal/stmt"
	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// Registry caches the mapping metadata of record types. See [NewRegistry].
type Registry = typeinfo.Registry

// TypeMetadata describes how a record type maps onto a table.
type TypeMetadata = typeinfo.Info

// FieldDescriptor describes how a field of a record type maps onto a column.
type FieldDescriptor = typeinfo.Field

// NewRegistry returns an empty [Registry]. A DB creates its own Registry
// unless one is passed with [WithRegistry].
func NewRegistry() *Registry {
	return typeinfo.NewRegistry()
}

// ColumnName returns the column name derived from a Go identifier, for
// example "FirstName" becomes "first_name".
func ColumnName(identifier string) string {
	return typeinfo.ColumnName(identifier)
}

// Conn is the database connection that statements are run on. It is
// implemented by *sql.DB, *sql.Tx and *sql.Conn.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// DB runs the statements synthesized for records on a database. A DB is safe
// for concurrent use when its Conn is.
type DB struct {
	conn     Conn
	dialect  dialect.Dialect
	registry *Registry
	logger   *zap.Logger
	stats    *QueryStats

	slowThreshold time.Duration

	// stmts is nil unless prepared statements are enabled.
	stmts *statementCache
	// tx is set when conn is a transaction, so that cached statements can be
	// bound to it.
	tx *sql.Tx
	// owned is closed by Close. It is set when the DB was opened by Open.
	owned *sql.DB
	// derived is set on the DB values returned by WithConn.
	derived bool

	closed atomic.Bool
}

// Option configures a [DB].
type Option func(*options)

type options struct {
	logger        *zap.Logger
	registry      *Registry
	prepare       bool
	slowThreshold time.Duration
}

// WithLogger sets the logger that statements are logged to. Nothing is
// logged by default.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry makes the DB use registry, so that several DB values share
// the metadata of record types.
func WithRegistry(registry *Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithPreparedStatements makes the DB prepare every statement it runs and
// keep it until [DB.Close]. Statements are only prepared when the Conn is a
// *sql.DB.
func WithPreparedStatements(prepare bool) Option {
	return func(o *options) {
		o.prepare = prepare
	}
}

// WithSlowThreshold makes the DB log statements that run for longer than d
// at warning level. Zero disables it.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) {
		o.slowThreshold = d
	}
}

// NewDB returns a DB that runs statements on conn, rendered for dialect d.
func NewDB(conn Conn, d dialect.Dialect, opts ...Option) (*DB, error) {
	if conn == nil {
		return nil, fmt.Errorf("cannot create DB: nil connection")
	}
	if d == nil {
		return nil, fmt.Errorf("cannot create DB: nil dialect")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}

	db := &DB{
		conn:          conn,
		dialect:       d,
		registry:      o.registry,
		logger:        o.logger.With(zap.String("dialect", d.Name())),
		stats:         &QueryStats{},
		slowThreshold: o.slowThreshold,
	}
	if sqldb, ok := conn.(*sql.DB); ok && o.prepare {
		db.stmts = newStatementCache(sqldb)
	}
	if tx, ok := conn.(*sql.Tx); ok {
		db.tx = tx
	}
	return db, nil
}

// Open opens a database with database/sql and returns a DB running
// statements on it. The dialect is chosen from the driver. The database is
// closed by [DB.Close].
func Open(driverName, dataSourceName string, opts ...Option) (*DB, error) {
	sqldb, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	d, err := dialect.ForDriver(sqldb.Driver())
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	db, err := NewDB(sqldb, d, opts...)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	db.owned = sqldb
	return db, nil
}

// WithConn returns a DB running statements on conn, typically a transaction
// begun on the database of db. It shares the dialect, registry, logger,
// statistics and prepared statements of db.
func (db *DB) WithConn(conn Conn) *DB {
	derived := &DB{
		conn:          conn,
		dialect:       db.dialect,
		registry:      db.registry,
		logger:        db.logger,
		stats:         db.stats,
		slowThreshold: db.slowThreshold,
		stmts:         db.stmts,
		derived:       true,
	}
	if tx, ok := conn.(*sql.Tx); ok {
		derived.tx = tx
	} else if _, ok := conn.(*sql.DB); !ok {
		// Statements prepared on the database cannot be moved to a
		// dedicated connection.
		derived.stmts = nil
	}
	return derived
}

// Close closes the prepared statements of db and, if db was returned by
// [Open], the database. A DB returned by WithConn does not own either and
// its Close does nothing.
func (db *DB) Close() error {
	if db.derived || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if db.stmts != nil {
		err = db.stmts.close()
	}
	if db.owned != nil {
		if cerr := db.owned.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Dialect returns the dialect statements are rendered for.
func (db *DB) Dialect() dialect.Dialect {
	return db.dialect
}

// Registry returns the registry holding the metadata of record types.
func (db *DB) Registry() *Registry {
	return db.registry
}

// Stats returns a snapshot of the statement statistics of db, which are
// shared with the DB values derived from it.
func (db *DB) Stats() StatsSnapshot {
	return db.stats.Snapshot()
}

// compile renders a synthesized statement for the dialect of db.
func (db *DB) compile(b *stmt.Bound) (string, []any, error) {
	return db.dialect.Compile(b.SQL, b.Args, false)
}

// prepared returns the prepared statement for query when statements are
// prepared.
func (db *DB) prepared(ctx context.Context, query string) (*sql.Stmt, error) {
	if db.stmts == nil {
		return nil, nil
	}
	s, err := db.stmts.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if db.tx != nil {
		// Statements bound to the transaction are closed by database/sql
		// when it ends.
		return db.tx.StmtContext(ctx, s), nil
	}
	return s, nil
}

// exec runs a statement that returns no rows.
func (db *DB) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	start := time.Now()
	s, err := db.prepared(ctx, query)
	var res sql.Result
	if err == nil {
		if s != nil {
			res, err = s.ExecContext(ctx, args...)
		} else {
			res, err = db.conn.ExecContext(ctx, query, args...)
		}
	}
	db.observe("exec", query, len(args), start, err)
	return res, err
}

// query runs a statement that returns rows.
func (db *DB) query(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	start := time.Now()
	s, err := db.prepared(ctx, query)
	var rows *sql.Rows
	if err == nil {
		if s != nil {
			rows, err = s.QueryContext(ctx, args...)
		} else {
			rows, err = db.conn.QueryContext(ctx, query, args...)
		}
	}
	db.observe("query", query, len(args), start, err)
	return rows, err
}

// observe updates the statistics and logs a statement once it has run.
func (db *DB) observe(kind string, query string, params int, start time.Time, err error) {
	took := time.Since(start)
	if kind == "exec" {
		db.stats.execs.Add(1)
	} else {
		db.stats.queries.Add(1)
	}
	db.stats.duration.Add(int64(took))

	fields := []zap.Field{
		zap.String("sql", query),
		zap.Int("params", params),
		zap.Duration("took", took),
	}
	if err != nil {
		db.stats.errors.Add(1)
		db.logger.Debug(kind+" failed", append(fields, zap.Error(err))...)
		return
	}
	if db.slowThreshold > 0 && took > db.slowThreshold {
		db.stats.slow.Add(1)
		db.logger.Warn("slow "+kind, fields...)
		return
	}
	if ce := db.logger.Check(zap.DebugLevel, kind); ce != nil {
		ce.Write(fields...)
	}
}
