// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"encoding"
	"fmt"
	"reflect"
)

// Value returns the value of the field within the struct value v, ready to be
// passed as a query parameter. Absent values (nil pointers, maps, slices and
// interfaces) are returned as nil so that they are stored as NULL. String
// enums are returned as their text form.
func (f *Field) Value(v reflect.Value) (any, error) {
	fv := v.FieldByIndex(f.Index)
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if fv.IsNil() {
			return nil, nil
		}
	}
	if f.IsStringEnum {
		return enumText(fv)
	}
	return fv.Interface(), nil
}

// enumText returns the text form of an enum value.
func enumText(v reflect.Value) (any, error) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	candidates := []reflect.Value{v}
	if v.CanAddr() {
		candidates = append(candidates, v.Addr())
	}
	for _, c := range candidates {
		if tm, ok := c.Interface().(encoding.TextMarshaler); ok {
			b, err := tm.MarshalText()
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}
	}
	for _, c := range candidates {
		if s, ok := c.Interface().(fmt.Stringer); ok {
			return s.String(), nil
		}
	}
	if v.Kind() == reflect.String {
		return v.String(), nil
	}
	return nil, fmt.Errorf("enum of type %s has no text form", v.Type())
}

// setEnum sets the enum value dst from its text form.
func setEnum(dst reflect.Value, text string) error {
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := setEnum(elem.Elem(), text); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if tu, ok := dst.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return tu.UnmarshalText([]byte(text))
	}
	if dst.Kind() == reflect.String {
		dst.SetString(text)
		return nil
	}
	return fmt.Errorf("cannot decode %q into enum of type %s", text, dst.Type())
}
