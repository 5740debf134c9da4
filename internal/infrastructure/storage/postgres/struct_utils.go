package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns extracts column names from struct "db" tags, in field
// order. Embedded structs are walked recursively. It is called once per type
// at initialization time.
//
//	columns := ExtractDBColumns[inventory.Product]()
//	// ["id", "sku", "name", "unit", "stock", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	return columnsOf(getOrCreateTypeMetadata(reflect.TypeOf(zero)))
}

func columnsOf(meta *typeMetadata) []string {
	cols := make([]string, 0, len(meta.fields))
	for _, fi := range meta.fields {
		if fi.embedded != nil {
			cols = append(cols, columnsOf(fi.embedded)...)
			continue
		}
		cols = append(cols, fi.dbTag)
	}
	return cols
}

type fieldInfo struct {
	index    int
	dbTag    string
	embedded *typeMetadata
}

type typeMetadata struct {
	fields []fieldInfo
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

func getOrCreateTypeMetadata(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous {
				meta.fields = append(meta.fields, fieldInfo{index: i, embedded: getOrCreateTypeMetadata(field.Type)})
				continue
			}
			if !field.IsExported() {
				continue
			}
			tag := field.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			meta.fields = append(meta.fields, fieldInfo{index: i, dbTag: tag})
		}
	}

	typeCache.Store(t, meta)
	return meta
}

// StructToMap converts a struct to a column -> value map using "db" tags.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	res := make(map[string]any)
	fillMap(res, rv, getOrCreateTypeMetadata(rv.Type()))
	return res
}

func fillMap(res map[string]any, rv reflect.Value, meta *typeMetadata) {
	for _, fi := range meta.fields {
		fv := rv.Field(fi.index)
		if fi.embedded != nil {
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			fillMap(res, fv, fi.embedded)
			continue
		}
		res[fi.dbTag] = fv.Interface()
	}
}

// Values returns the values of cols from v in order, for COPY rows.
func Values(v any, cols []string) []any {
	m := StructToMap(v)
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = m[c]
	}
	return out
}

// Without returns cols minus the excluded names.
func Without(cols []string, exclude ...string) []string {
	out := make([]string, 0, len(cols))
outer:
	for _, c := range cols {
		for _, e := range exclude {
			if c == e {
				continue outer
			}
		}
		out = append(out, c)
	}
	return out
}
