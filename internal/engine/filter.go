package engine

import (
	"fmt"
	"maps"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// FilterFunc post-processes a serialized record. Its result replaces the
// record in the response.
type FilterFunc func(row map[string]any) (map[string]any, error)

// ComputedField adds a key whose value is an expression evaluated against the
// serialized record, e.g. {Name: "displayTitle", Expression: "upper(title)"}.
type ComputedField struct {
	Name       string
	Expression string
}

type compiledField struct {
	name string
	prog *vm.Program
}

// NewExprFilter builds a filter that drops the omitted keys and adds the
// computed ones. Expressions are compiled once; they see the record before
// any key is omitted.
func NewExprFilter(omit []string, computed []ComputedField) (FilterFunc, error) {
	fields := make([]compiledField, 0, len(computed))
	for _, cf := range computed {
		prog, err := expr.Compile(cf.Expression)
		if err != nil {
			return nil, fmt.Errorf("compile computed field %s: %w", cf.Name, err)
		}
		fields = append(fields, compiledField{name: cf.Name, prog: prog})
	}

	return func(row map[string]any) (map[string]any, error) {
		out := maps.Clone(row)
		for _, f := range fields {
			v, err := expr.Run(f.prog, row)
			if err != nil {
				return nil, fmt.Errorf("evaluate computed field %s: %w", f.name, err)
			}
			out[f.name] = v
		}
		for _, key := range omit {
			delete(out, key)
		}
		return out, nil
	}, nil
}
