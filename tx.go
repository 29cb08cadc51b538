// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
)

// ErrTXDone is returned when committing or rolling back a transaction that
// has already ended.
var ErrTXDone = sql.ErrTxDone

type beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// TX is a transaction on the database. The record operations run within the
// transaction when they are passed TX.DB. A transaction must be ended with
// [TX.Commit] or [TX.Rollback].
type TX struct {
	*DB
	sqltx *sql.Tx
	done  atomic.Bool
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Begin starts a transaction. The Conn of db must be a *sql.DB or a
// *sql.Conn.
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	b, ok := db.conn.(beginner)
	if !ok {
		return nil, fmt.Errorf("cannot begin transaction on %T", db.conn)
	}
	sqltx, err := b.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{DB: db.WithConn(sqltx), sqltx: sqltx}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	if !tx.done.CompareAndSwap(false, true) {
		return ErrTXDone
	}
	return tx.sqltx.Commit()
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	if !tx.done.CompareAndSwap(false, true) {
		return ErrTXDone
	}
	return tx.sqltx.Rollback()
}
