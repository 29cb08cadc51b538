// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/canonical/sqlrecord/internal/typeinfo"
)

var (
	// ErrNoRows is returned when a record or value is requested and the
	// query returned no rows.
	ErrNoRows = sql.ErrNoRows

	// ErrMissingKey is matched by the errors of operations that identify
	// rows by key, run on types without key fields.
	ErrMissingKey = errors.New("no key fields")

	// ErrKeyArity is matched by the errors of Get when the number of ids
	// differs from the number of key fields.
	ErrKeyArity = errors.New("key arity mismatch")

	// ErrUpsertUnsupported is returned by the upsert operations when the
	// dialect cannot report whether a row was inserted or updated.
	ErrUpsertUnsupported = errors.New("upsert not supported by dialect")

	// ErrInvalidIdentifier is matched by the errors caused by table or
	// column names that are not plain SQL identifiers.
	ErrInvalidIdentifier = typeinfo.ErrInvalidIdentifier

	// ErrHeterogeneousBatch is returned when the records of a batch are not
	// all of the same type.
	ErrHeterogeneousBatch = errors.New("batch mixes record types")
)

// MissingKeyError is returned when an operation identifying rows by key is
// run on a type without key fields.
type MissingKeyError struct {
	Type reflect.Type
	Op   string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("cannot %s %s: type has no key fields", e.Op, e.Type)
}

func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// KeyArityMismatchError is returned by Get when the number of ids differs
// from the number of key fields of the type.
type KeyArityMismatchError struct {
	Type reflect.Type
	Want int
	Got  int
}

func (e *KeyArityMismatchError) Error() string {
	return fmt.Sprintf("cannot get %s: type has %d key fields, got %d ids", e.Type, e.Want, e.Got)
}

func (e *KeyArityMismatchError) Is(target error) bool {
	return target == ErrKeyArity
}

// requireKeys returns a MissingKeyError if info has no key fields.
func requireKeys(info *typeinfo.Info, op string) error {
	if !info.HasKey() {
		return &MissingKeyError{Type: info.Type, Op: op}
	}
	return nil
}
