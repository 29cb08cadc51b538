// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// statementCache holds the statements prepared on a database, indexed by the
// query text rendered for the driver. Synthesized statements only depend on
// the record type, the operation and the batch size, so the set of distinct
// queries stays small.
//
// The mutex must be locked when accessing stmts.
type statementCache struct {
	db     *sql.DB
	stmts  map[string]*sql.Stmt
	closed bool
	mutex  sync.RWMutex
}

var errCacheClosed = errors.New("prepared statements closed")

func newStatementCache(db *sql.DB) *statementCache {
	return &statementCache{
		db:    db,
		stmts: map[string]*sql.Stmt{},
	}
}

// prepare returns the statement prepared for query, preparing it on first
// use.
func (sc *statementCache) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	sc.mutex.RLock()
	s, ok := sc.stmts[query]
	closed := sc.closed
	sc.mutex.RUnlock()
	if ok {
		return s, nil
	}
	if closed {
		return nil, errCacheClosed
	}

	s, err := sc.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if alt, ok := sc.stmts[query]; ok {
		s.Close()
		return alt, nil
	}
	if sc.closed {
		s.Close()
		return nil, errCacheClosed
	}
	sc.stmts[query] = s
	return s, nil
}

// len returns the number of prepared statements.
func (sc *statementCache) len() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return len(sc.stmts)
}

// close closes every prepared statement. Statements cannot be prepared
// afterwards.
func (sc *statementCache) close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	var err error
	for query, s := range sc.stmts {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
		delete(sc.stmts, query)
	}
	sc.closed = true
	return err
}
