// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"fmt"
	"reflect"
)

// ScanProxy is a shim for scanning query results into fields that cannot be
// scanned into directly.
type ScanProxy struct {
	original reflect.Value
	scan     reflect.Value
	enum     bool
}

// OnSuccess copies the scanned value into the original field. NULL results
// set the field to its zero value.
func (sp ScanProxy) OnSuccess() error {
	if sp.enum {
		ns := sp.scan.Interface().(*sql.NullString)
		if !ns.Valid {
			sp.original.Set(reflect.Zero(sp.original.Type()))
			return nil
		}
		return setEnum(sp.original, ns.String)
	}
	var val reflect.Value
	if !sp.scan.IsNil() {
		val = sp.scan.Elem()
	} else {
		val = reflect.Zero(sp.original.Type())
	}
	sp.original.Set(val)
	return nil
}

// ScanTarget returns a pointer for rows.Scan that stores the column into the
// field within the struct value v, along with a ScanProxy in the cases where
// the field cannot be scanned into directly.
//
// rows.Scan returns an error if it scans NULL into a type that cannot be set
// to nil, so for fields that are not pointers and do not implement
// sql.Scanner a pointer to them is scanned into and the field is zeroed by
// ScanProxy.OnSuccess when the result is NULL.
func (f *Field) ScanTarget(v reflect.Value) (any, *ScanProxy, error) {
	fv := v.FieldByIndex(f.Index)
	if !fv.CanSet() {
		return nil, nil, fmt.Errorf("internal error: cannot set field %s of %s", f.Name, v.Type())
	}
	ptr, proxy := scanTarget(fv, f.IsStringEnum)
	return ptr, proxy, nil
}

// ValueScanTarget is ScanTarget for a single settable value, such as the
// element of a pointer passed to receive a scalar result.
func ValueScanTarget(v reflect.Value) (any, *ScanProxy, error) {
	if !v.CanSet() {
		return nil, nil, fmt.Errorf("internal error: cannot set value of %s", v.Type())
	}
	ptr, proxy := scanTarget(v, false)
	return ptr, proxy, nil
}

func scanTarget(fv reflect.Value, enum bool) (any, *ScanProxy) {
	if enum {
		scanVal := reflect.ValueOf(&sql.NullString{})
		return scanVal.Interface(), &ScanProxy{original: fv, scan: scanVal, enum: true}
	}
	pt := reflect.PointerTo(fv.Type())
	if fv.Kind() != reflect.Pointer && fv.Kind() != reflect.Interface && !pt.Implements(scannerInterface) {
		scanVal := reflect.New(pt).Elem()
		return scanVal.Addr().Interface(), &ScanProxy{original: fv, scan: scanVal}
	}
	return fv.Addr().Interface(), nil
}

// ScanTargets returns the rows.Scan targets for the result columns within the
// struct value v, which must be addressable. Columns that do not map onto a
// field are scanned into a sink and dropped.
func (info *Info) ScanTargets(columns []string, v reflect.Value) ([]any, []*ScanProxy, error) {
	if v.Type() != info.Type {
		return nil, nil, fmt.Errorf("internal error: scanning %s with info of %s", v.Type(), info.Type)
	}
	ptrs := make([]any, len(columns))
	var proxies []*ScanProxy
	var sink any
	for i, col := range columns {
		f, ok := info.FieldByColumn(col)
		if !ok {
			ptrs[i] = &sink
			continue
		}
		ptr, proxy, err := f.ScanTarget(v)
		if err != nil {
			return nil, nil, err
		}
		ptrs[i] = ptr
		if proxy != nil {
			proxies = append(proxies, proxy)
		}
	}
	return ptrs, proxies, nil
}
