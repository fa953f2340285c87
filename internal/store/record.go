package store

import (
	"fmt"
	"maps"

	"crudkit/internal/metadata"
)

// Record is one row of a model. Records loaded or added through a session are
// tracked by it: changes made with Set are written on Commit. A detached
// record keeps its values but is no longer written.
type Record struct {
	Model *metadata.Model

	values    map[string]any
	related   map[string][]any
	dirty     map[string]bool
	persisted bool
	session   *Session
}

// NewRecord creates an unsaved record. Keys that are not columns of the model
// are ignored.
func NewRecord(model *metadata.Model, values map[string]any) *Record {
	r := &Record{
		Model:   model,
		values:  make(map[string]any, len(values)),
		related: make(map[string][]any),
		dirty:   make(map[string]bool),
	}
	for k, v := range values {
		if f := model.GetField(k); f != nil && !f.IsRelation() {
			r.values[k] = v
		}
	}
	return r
}

// Get returns a column value, or the related primary keys for a to-many field.
func (r *Record) Get(name string) any {
	if f := r.Model.GetField(name); f != nil && f.IsRelation() {
		return r.Related(name)
	}
	return r.values[name]
}

// Set changes a column value. To-many fields cannot be set.
func (r *Record) Set(name string, v any) error {
	f := r.Model.GetField(name)
	if f == nil {
		return fmt.Errorf("%s has no field %s", r.Model.Name, name)
	}
	if f.IsRelation() {
		return fmt.Errorf("%s.%s is a relation and cannot be set", r.Model.Name, name)
	}
	r.values[name] = v
	r.dirty[name] = true
	return nil
}

// PK returns the primary key value.
func (r *Record) PK() any {
	return r.values[r.Model.PrimaryKey.Field]
}

// Values returns a copy of the column values.
func (r *Record) Values() map[string]any {
	return maps.Clone(r.values)
}

// Related returns the primary keys of the records behind a to-many field, in
// key order. Never nil for a loaded record.
func (r *Record) Related(name string) []any {
	if ids, ok := r.related[name]; ok {
		return ids
	}
	return []any{}
}

// Persisted reports whether the record exists in the database.
func (r *Record) Persisted() bool {
	return r.persisted
}

// Detached reports whether the record is not tracked by any session.
func (r *Record) Detached() bool {
	return r.session == nil
}

func (r *Record) identity() string {
	return identityKey(r.Model, r.PK())
}

func identityKey(model *metadata.Model, pk any) string {
	return fmt.Sprintf("%s:%v", model.Name, pk)
}

// load replaces the values with a scanned row, normalized per field type.
func (r *Record) load(row map[string]any) {
	for _, f := range r.Model.Fields {
		if f.IsRelation() {
			continue
		}
		if v, ok := row[f.Name]; ok {
			r.values[f.Name] = f.FromDB(v)
		}
	}
	r.persisted = true
	clear(r.dirty)
}

func (r *Record) dirtyColumns() []string {
	var cols []string
	for _, name := range r.Model.ColumnNames() {
		if r.dirty[name] && !r.Model.IsPrimaryKey(name) {
			cols = append(cols, name)
		}
	}
	return cols
}
