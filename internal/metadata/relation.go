package metadata

import "fmt"

const (
	RelationOneToMany  = "one_to_many"
	RelationManyToMany = "many_to_many"
)

// Relation describes how the primary keys behind a to-many field are found.
//
// one_to_many:  SELECT target_pk FROM target WHERE target_key = <source pk>
// many_to_many: SELECT target_join_key FROM join_table WHERE source_join_key = <source pk>
type Relation struct {
	Type          string `json:"type"`
	Target        string `json:"target,omitempty"`     // target table
	TargetKey     string `json:"target_key,omitempty"` // FK column on the target table
	TargetPK      string `json:"target_pk,omitempty"`
	JoinTable     string `json:"join_table,omitempty"`
	SourceJoinKey string `json:"source_join_key,omitempty"`
	TargetJoinKey string `json:"target_join_key,omitempty"`
}

func (r *Relation) IsManyToMany() bool {
	return r.Type == RelationManyToMany
}

func (r *Relation) IsOneToMany() bool {
	return r.Type == RelationOneToMany
}

// Table returns the table holding the related keys.
func (r *Relation) Table() string {
	if r.IsManyToMany() {
		return r.JoinTable
	}
	return r.Target
}

// SourceColumn returns the column matched against the owning record's key.
func (r *Relation) SourceColumn() string {
	if r.IsManyToMany() {
		return r.SourceJoinKey
	}
	return r.TargetKey
}

// KeyColumn returns the column holding the related primary keys.
func (r *Relation) KeyColumn() string {
	if r.IsManyToMany() {
		return r.TargetJoinKey
	}
	if r.TargetPK == "" {
		return "id"
	}
	return r.TargetPK
}

func (r *Relation) validate() error {
	if !r.IsManyToMany() && !r.IsOneToMany() {
		return fmt.Errorf("unknown relation type %q", r.Type)
	}
	for _, ident := range []string{r.Table(), r.SourceColumn(), r.KeyColumn()} {
		if !IsValidIdentifier(ident) {
			return fmt.Errorf("relation: invalid identifier %q", ident)
		}
	}
	return nil
}
