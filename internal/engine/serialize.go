package engine

import (
	"context"
	"fmt"
	"time"

	"crudkit/internal/metadata"
	"crudkit/internal/store"
	"crudkit/internal/strfunc"
)

// Serialize renders a record for the wire: keys in lowerCamelCase, to-many
// fields as lists of related keys, enums as [value, name] and timestamps as
// RFC 3339 strings in the controller's zone. encoding/json emits the keys
// sorted.
//
// In BestEffort mode a record that cannot be rendered is logged with the
// request's logger and its raw column values are returned instead.
func (c *Controller) Serialize(ctx context.Context, rec *store.Record) (map[string]any, error) {
	out, err := c.serialize(rec)
	if err == nil {
		return out, nil
	}
	if c.serializeMode == StrictSerialize {
		return nil, err
	}
	c.logger(ctx).Warn().Err(err).Interface("pk", rec.PK()).Msg("serialize failed, returning raw record")
	return rec.Values(), nil
}

func (c *Controller) serialize(rec *store.Record) (map[string]any, error) {
	out := make(map[string]any, len(c.model.Fields))
	for _, f := range c.model.Fields {
		v, err := c.renderValue(f, rec.Get(f.Name))
		if err != nil {
			return nil, err
		}
		out[strfunc.LowerCamelCase(f.Name)] = v
	}
	return out, nil
}

func (c *Controller) renderValue(f metadata.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case metadata.TypeEnum:
		m, ok := f.EnumMember(v)
		if !ok {
			return nil, fmt.Errorf("%s: %v is not a member of the enum", f.Name, v)
		}
		return []any{m.Value, m.Name}, nil
	case metadata.TypeTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%s: cannot render %T as a timestamp", f.Name, v)
		}
		return t.In(c.location).Format(time.RFC3339Nano), nil
	case metadata.TypeDate:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%s: cannot render %T as a date", f.Name, v)
		}
		return t.Format(time.DateOnly), nil
	}
	return v, nil
}
