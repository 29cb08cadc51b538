// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

var (
	scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType         = reflect.TypeOf(time.Time{})
	valuerInterface  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// TableNamer is implemented by types that are stored in a table whose name is
// not derived from the type name.
type TableNamer interface {
	TableName() string
}

// Registry caches the Info of types. An entry is generated on the first
// lookup of a type and is never changed or evicted afterwards. A Registry is
// safe for concurrent use and every lookup of a type returns the same *Info.
type Registry struct {
	mutex sync.RWMutex
	cache map[reflect.Type]*entry
}

type entry struct {
	info *Info
	err  error
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[reflect.Type]*entry)}
}

// TypeInfo returns the Info of t, generating and caching it as required.
// Pointer types share the Info of the type they point to.
func (r *Registry) TypeInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mutex.RLock()
	e, found := r.cache[t]
	r.mutex.RUnlock()
	if found {
		return e.info, e.err
	}

	info, err := generate(t)

	r.mutex.Lock()
	defer r.mutex.Unlock()
	// Check if the type has been stored by someone else since we last
	// checked. Theirs is kept so that a single Info is ever observed.
	if e, found := r.cache[t]; found {
		return e.info, e.err
	}
	r.cache[t] = &entry{info: info, err: err}
	return info, err
}

// ValueInfo returns the Info of the runtime type of value.
func (r *Registry) ValueInfo(value any) (*Info, error) {
	if value == nil {
		return nil, fmt.Errorf("cannot reflect nil value")
	}
	return r.TypeInfo(reflect.TypeOf(value))
}

// Len returns the number of cached types.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.cache)
}

// generate produces the Info of t. Types other than structs produce an Info
// without fields.
func generate(t reflect.Type) (*Info, error) {
	table, err := tableName(t)
	if err != nil {
		return nil, err
	}
	info := &Info{
		Type:     t,
		Table:    table,
		byColumn: make(map[string]*Field),
	}
	if t.Kind() == reflect.Struct && !isLeaf(t) {
		var embeddedIn []string
		if err := info.addFields(t, nil, "", &embeddedIn); err != nil {
			return nil, err
		}
		if err := info.nameParams(embeddedIn); err != nil {
			return nil, err
		}
	}
	info.index()
	return info, nil
}

func tableName(t reflect.Type) (string, error) {
	if tn, ok := reflect.New(t).Interface().(TableNamer); ok {
		name := tn.TableName()
		if !ValidTable(name) {
			return "", fmt.Errorf("%w: table %q of type %s", ErrInvalidIdentifier, name, t)
		}
		return name, nil
	}
	return ColumnName(t.Name()), nil
}

// addFields appends the mapped fields of the struct type t. base is the index
// path of t within the root type and prefix the name of the embedded struct.
// The prefix of every field appended is recorded in embeddedIn.
func (info *Info) addFields(t reflect.Type, base []int, prefix string, embeddedIn *[]string) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, tagged := sf.Tag.Lookup("db")
		index := append(append([]int(nil), base...), i)

		// Embedded structs without a tag are flattened into the parent.
		if sf.Anonymous && !tagged && sf.Type.Kind() == reflect.Struct && !isLeaf(sf.Type) {
			if err := info.addFields(sf.Type, index, sf.Type.Name(), embeddedIn); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		opts, err := parseTag(tag)
		if err != nil {
			return fmt.Errorf("field %s of %s: %w", sf.Name, info.Type, err)
		}
		if opts.skip {
			continue
		}
		column := opts.column
		if column == "" {
			column = ColumnName(sf.Name)
		}
		if _, ok := info.byColumn[strings.ToLower(column)]; ok {
			continue
		}

		f := &Field{
			Type:         sf.Type,
			Name:         sf.Name,
			Column:       column,
			Index:        index,
			IsKey:        opts.key,
			IsGenerated:  opts.generated,
			IsWritable:   !opts.generated && !opts.readonly,
			IsReadable:   true,
			IsStringEnum: opts.enum,
		}
		info.Fields = append(info.Fields, f)
		info.byColumn[strings.ToLower(column)] = f
		*embeddedIn = append(*embeddedIn, prefix)
	}
	return nil
}

// nameParams sets the parameter names of the fields once all of them are
// known. A field name declared more than once keeps its name on the field of
// the outer struct, while fields of embedded structs are named
// "<Embedded>_<Field>".
func (info *Info) nameParams(embeddedIn []string) error {
	declared := make(map[string]int, len(info.Fields))
	for _, f := range info.Fields {
		declared[f.Name]++
	}
	params := make(map[string]bool, len(info.Fields))
	for i, f := range info.Fields {
		f.Param = f.Name
		if declared[f.Name] > 1 && embeddedIn[i] != "" {
			f.Param = embeddedIn[i] + "_" + f.Name
		}
		if params[f.Param] {
			return fmt.Errorf("field %s of %s: parameter name %q is ambiguous", f.Name, info.Type, f.Param)
		}
		params[f.Param] = true
	}
	return nil
}

// isLeaf reports whether a struct type is stored as a single value rather than
// flattened into columns.
func isLeaf(t reflect.Type) bool {
	return t == timeType || reflect.PointerTo(t).Implements(scannerInterface)
}

// IsRecord reports whether values of t are mapped onto the columns of a row,
// as opposed to being stored in a single column.
func IsRecord(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && !isLeaf(t) && !t.Implements(valuerInterface)
}
