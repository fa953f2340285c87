package metadata

import (
	"fmt"

	"crudkit/internal/config"
)

// FromConfig builds and validates a model from its configuration entry.
func FromConfig(mc config.ModelConfig) (*Model, error) {
	m := &Model{
		Name:  mc.Name,
		Table: mc.Table,
		PrimaryKey: PrimaryKey{
			Field:     mc.PrimaryKey.Field,
			Type:      mc.PrimaryKey.Type,
			Generated: mc.PrimaryKey.Generated,
		},
		SoftDelete: mc.SoftDelete,
		Settable:   mc.Settable,
		Editable:   mc.Editable,
		Locked:     mc.Locked,
	}
	if m.Table == "" {
		m.Table = m.Name
	}
	if m.PrimaryKey.Field == "" {
		m.PrimaryKey.Field = "id"
	}

	for _, fc := range mc.Fields {
		f := Field{Name: fc.Name, Type: fc.Type, Nullable: fc.Nullable}
		for _, em := range fc.Enum {
			f.Enum = append(f.Enum, EnumMember{Name: em.Name, Value: em.Value})
		}
		if fc.Relation != nil {
			f.Relation = &Relation{
				Type:          fc.Relation.Type,
				Target:        fc.Relation.Target,
				TargetKey:     fc.Relation.TargetKey,
				TargetPK:      fc.Relation.TargetPK,
				JoinTable:     fc.Relation.JoinTable,
				SourceJoinKey: fc.Relation.SourceJoinKey,
				TargetJoinKey: fc.Relation.TargetJoinKey,
			}
		}
		m.Fields = append(m.Fields, f)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadAll builds every configured model and populates the registry.
func LoadAll(models []config.ModelConfig, reg *Registry) error {
	built := make([]*Model, 0, len(models))
	for _, mc := range models {
		m, err := FromConfig(mc)
		if err != nil {
			return fmt.Errorf("load model %s: %w", mc.Name, err)
		}
		built = append(built, m)
	}
	reg.Load(built)
	return nil
}
