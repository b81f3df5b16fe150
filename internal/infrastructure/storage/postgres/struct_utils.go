package postgres

import (
	"reflect"
	"sync"
)

// Columns returns the "db" tag names of T in field order, descending into
// embedded structs. Fields tagged "-" or untagged are skipped.
func Columns[T any]() []string {
	var zero T
	meta := metadataFor(reflect.TypeOf(zero))
	cols := make([]string, 0, len(meta.fields))
	for _, f := range meta.fields {
		cols = append(cols, f.column)
	}
	return cols
}

type column struct {
	index  []int
	column string
}

type typeMetadata struct {
	fields []column
}

var typeCache sync.Map // reflect.Type -> *typeMetadata

func metadataFor(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		collect(t, nil, meta)
	}
	typeCache.Store(t, meta)
	return meta
}

func collect(t reflect.Type, prefix []int, meta *typeMetadata) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collect(field.Type, index, meta)
			continue
		}
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.fields = append(meta.fields, column{index: index, column: tag})
	}
}

// StructToMap converts a struct to column -> value using "db" tags.
// Metadata is computed once per type.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metadataFor(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, f := range meta.fields {
		res[f.column] = rv.FieldByIndex(f.index).Interface()
	}
	return res
}

// Pick keeps only the listed columns of data.
func Pick(data map[string]any, cols ...string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		if v, ok := data[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Omit returns the columns of cols not present in skip.
func Omit(cols []string, skip ...string) []string {
	out := make([]string, 0, len(cols))
next:
	for _, c := range cols {
		for _, s := range skip {
			if c == s {
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}
