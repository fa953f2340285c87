package engine

import (
	"fmt"
	"slices"

	"crudkit/internal/strfunc"
)

// columnKeys converts wire keys to column names and drops what a client can
// never write: unknown keys, to-many relations and the primary key.
func (c *Controller) columnKeys(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		name := strfunc.SnakeCase(k)
		f := c.model.GetField(name)
		if f == nil || f.IsRelation() || c.model.IsPrimaryKey(name) {
			continue
		}
		out[name] = v
	}
	return out
}

func (c *Controller) prepareCreate(fields map[string]any) (map[string]any, error) {
	values := c.columnKeys(fields)

	var denied []string
	for name := range values {
		if !c.model.CanSet(name) {
			denied = append(denied, name)
		}
	}
	if len(denied) > 0 {
		return nil, notAllowedError(denied)
	}

	var missing []string
	for _, name := range c.required {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		details := make([]ErrorDetail, len(missing))
		for i, name := range missing {
			details[i] = ErrorDetail{Field: name, Message: "is required"}
		}
		return nil, ValidationError(
			fmt.Sprintf("missing one or more fields, body must contain %s", joinFields(c.required)), details)
	}

	return c.coerce(values)
}

func (c *Controller) prepareUpdate(fields map[string]any) (map[string]any, error) {
	values := c.columnKeys(fields)

	var denied []string
	for name := range values {
		if slices.Contains(c.model.Locked, name) {
			delete(values, name)
			continue
		}
		if c.model.CanEdit(name) {
			continue
		}
		if c.updatePolicy == Strict {
			denied = append(denied, name)
		}
		delete(values, name)
	}
	if len(denied) > 0 {
		return nil, notAllowedError(denied)
	}

	return c.coerce(values)
}

// coerce converts every value to its column type.
func (c *Controller) coerce(values map[string]any) (map[string]any, error) {
	var details []ErrorDetail
	for _, name := range sortedKeys(values) {
		f := c.model.GetField(name)
		v, err := f.Coerce(values[name])
		if err != nil {
			details = append(details, ErrorDetail{Field: name, Message: err.Error()})
			continue
		}
		if v == nil && !f.Nullable {
			details = append(details, ErrorDetail{Field: name, Message: "cannot be null"})
			continue
		}
		values[name] = v
	}
	if len(details) > 0 {
		return nil, ValidationError("invalid field values", details)
	}
	return values, nil
}

func notAllowedError(names []string) *AppError {
	slices.Sort(names)
	details := make([]ErrorDetail, len(names))
	for i, name := range names {
		details[i] = ErrorDetail{Field: name, Message: "not allowed"}
	}
	msg := fmt.Sprintf("not allowed to set field %s", names[0])
	if len(names) > 1 {
		msg = fmt.Sprintf("not allowed to set fields %s", joinFields(names))
	}
	return ValidationError(msg, details)
}
