package metadata

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"crudkit/internal/strfunc"
)

// Model describes one record type: its table, primary key, fields and the
// allow-lists that restrict what clients may write. A nil allow-list means
// unrestricted; an empty, non-nil list allows nothing.
type Model struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	SoftDelete string     `json:"soft_delete,omitempty"` // nullable timestamp marker column
	Settable   []string   `json:"settable,omitempty"`
	Editable   []string   `json:"editable,omitempty"`
	Locked     []string   `json:"locked,omitempty"` // never written by update
	Fields     []Field    `json:"fields"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (m *Model) GetField(name string) *Field {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

// ColumnNames returns the names of all stored columns, in declaration order.
// To-many relation fields are not columns.
func (m *Model) ColumnNames() []string {
	names := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.IsRelation() {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// RelationFields returns the to-many fields.
func (m *Model) RelationFields() []Field {
	var fields []Field
	for _, f := range m.Fields {
		if f.IsRelation() {
			fields = append(fields, f)
		}
	}
	return fields
}

// SupportsSoftDelete reports whether the model carries a soft-delete marker.
func (m *Model) SupportsSoftDelete() bool {
	return m.SoftDelete != ""
}

// IsPrimaryKey reports whether name is the primary key column.
func (m *Model) IsPrimaryKey(name string) bool {
	return name == m.PrimaryKey.Field
}

// CanSet reports whether a client may set the field on create.
func (m *Model) CanSet(name string) bool {
	return m.Settable == nil || slices.Contains(m.Settable, name)
}

// CanEdit reports whether a client may change the field on update.
func (m *Model) CanEdit(name string) bool {
	if slices.Contains(m.Locked, name) {
		return false
	}
	return m.Editable == nil || slices.Contains(m.Editable, name)
}

// CoercePK converts a primary key taken from a URL path into the Go type the
// driver expects for the key column.
func (m *Model) CoercePK(raw string) (any, error) {
	switch m.PrimaryKey.Type {
	case TypeInt, TypeBigint:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s primary key %q", m.PrimaryKey.Type, raw)
		}
		return n, nil
	case TypeUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid primary key %q", raw)
		}
		return id.String(), nil
	default:
		if raw == "" {
			return nil, fmt.Errorf("empty primary key")
		}
		return raw, nil
	}
}

// Validate checks the model for internal consistency. Identifiers end up in
// generated SQL, so they must be plain identifiers, and field names must
// survive the snake_case <-> lowerCamelCase mapping used for wire keys.
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if !IsValidIdentifier(m.Table) {
		return fmt.Errorf("model %s: invalid table name %q", m.Name, m.Table)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("model %s: no fields", m.Name)
	}

	seen := make(map[string]bool, len(m.Fields))
	for i := range m.Fields {
		f := &m.Fields[i]
		if !IsValidIdentifier(f.Name) {
			return fmt.Errorf("model %s: invalid field name %q", m.Name, f.Name)
		}
		if key := strfunc.LowerCamelCase(f.Name); strfunc.SnakeCase(key) != f.Name {
			return fmt.Errorf("model %s: field %q cannot be addressed on the wire (%q maps back to %q)",
				m.Name, f.Name, key, strfunc.SnakeCase(key))
		}
		if seen[f.Name] {
			return fmt.Errorf("model %s: duplicate field %s", m.Name, f.Name)
		}
		seen[f.Name] = true
		if err := f.validate(); err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
	}

	pk := m.GetField(m.PrimaryKey.Field)
	if pk == nil {
		return fmt.Errorf("model %s: primary key field %q not declared", m.Name, m.PrimaryKey.Field)
	}
	if pk.IsRelation() {
		return fmt.Errorf("model %s: primary key cannot be a relation", m.Name)
	}
	if m.PrimaryKey.Type == "" {
		m.PrimaryKey.Type = pk.Type
	}

	if m.SoftDelete != "" {
		marker := m.GetField(m.SoftDelete)
		if marker == nil {
			return fmt.Errorf("model %s: soft delete marker %q not declared", m.Name, m.SoftDelete)
		}
		if marker.Type != TypeTimestamp {
			return fmt.Errorf("model %s: soft delete marker %q must be a timestamp", m.Name, m.SoftDelete)
		}
	}

	for list, names := range map[string][]string{"settable": m.Settable, "editable": m.Editable, "locked": m.Locked} {
		for _, name := range names {
			if !seen[name] {
				return fmt.Errorf("model %s: %s references unknown field %q", m.Name, list, name)
			}
		}
	}
	return nil
}
