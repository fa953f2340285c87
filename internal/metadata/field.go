package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

const (
	TypeString    = "string"
	TypeText      = "text"
	TypeInt       = "int"
	TypeBigint    = "bigint"
	TypeFloat     = "float"
	TypeDecimal   = "decimal"
	TypeBoolean   = "boolean"
	TypeUUID      = "uuid"
	TypeTimestamp = "timestamp"
	TypeDate      = "date"
	TypeJSON      = "json"
	TypeEnum      = "enum"
	TypeHasMany   = "has_many"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidIdentifier reports whether s can be used unquoted as a table or
// column name.
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// timestampLayouts lists the formats drivers hand back for timestamp columns
// stored as text (SQLite) plus what clients send.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

type EnumMember struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type Field struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Nullable bool         `json:"nullable,omitempty"`
	Enum     []EnumMember `json:"enum,omitempty"`
	Relation *Relation    `json:"relation,omitempty"`
}

// IsRelation returns true for to-many fields, which are not stored columns.
func (f Field) IsRelation() bool {
	return f.Type == TypeHasMany
}

// EnumMember returns the member whose value matches v.
func (f Field) EnumMember(v any) (EnumMember, bool) {
	key := fmt.Sprint(v)
	for _, m := range f.Enum {
		if fmt.Sprint(m.Value) == key {
			return m, true
		}
	}
	return EnumMember{}, false
}

func (f Field) validate() error {
	switch f.Type {
	case TypeString, TypeText, TypeInt, TypeBigint, TypeFloat, TypeDecimal, TypeBoolean,
		TypeUUID, TypeTimestamp, TypeDate, TypeJSON:
		return nil
	case TypeEnum:
		if len(f.Enum) == 0 {
			return fmt.Errorf("enum field %s has no members", f.Name)
		}
		return nil
	case TypeHasMany:
		if f.Relation == nil {
			return fmt.Errorf("has_many field %s has no relation", f.Name)
		}
		return f.Relation.validate()
	default:
		return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
	}
}

// Coerce converts a decoded JSON value into the value bound for this column.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case TypeInt, TypeBigint:
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%s must be an integer", f.Name)
			}
			return int64(n), nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case json.Number:
			return n.Int64()
		}
		return nil, fmt.Errorf("%s must be an integer", f.Name)
	case TypeFloat, TypeDecimal:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		}
		return nil, fmt.Errorf("%s must be a number", f.Name)
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%s must be a boolean", f.Name)
	case TypeTimestamp, TypeDate:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			if parsed, ok := parseTimestamp(t); ok {
				return parsed, nil
			}
			if parsed, err := time.Parse(time.DateOnly, t); err == nil {
				return parsed, nil
			}
		}
		return nil, fmt.Errorf("%s must be an ISO-8601 timestamp", f.Name)
	case TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return string(b), nil
	case TypeEnum:
		if m, ok := f.EnumMember(v); ok {
			return m.Value, nil
		}
		if s, ok := v.(string); ok {
			for _, m := range f.Enum {
				if m.Name == s {
					return m.Value, nil
				}
			}
		}
		return nil, fmt.Errorf("%s: %v is not a member of the enum", f.Name, v)
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%s must be a string", f.Name)
	}
}

// FromDB normalizes a scanned column value into the Go type the serializer
// expects for the field. Values that cannot be normalized are returned as-is.
func (f Field) FromDB(v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch f.Type {
	case TypeBoolean:
		switch n := v.(type) {
		case int64:
			return n != 0
		case int:
			return n != 0
		}
	case TypeTimestamp, TypeDate:
		if s, ok := v.(string); ok {
			if t, ok := parseTimestamp(s); ok {
				return t
			}
			if t, err := time.Parse(time.DateOnly, s); err == nil {
				return t
			}
		}
	case TypeDecimal, TypeFloat:
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return n
			}
		}
	case TypeJSON:
		if s, ok := v.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	}
	return v
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
