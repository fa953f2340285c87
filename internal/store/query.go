package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"crudkit/internal/metadata"
)

type condition struct {
	column string
	isNull bool
	value  any
}

// Query selects rows of one model. Builder methods return a new Query, so a
// base query can be shared between a page fetch and its count.
type Query struct {
	session *Session
	model   *metadata.Model
	where   []condition
	offset  int
	limit   int // negative means no limit
}

func (q *Query) with(c condition) *Query {
	next := *q
	next.where = append(slices.Clip(q.where), c)
	return &next
}

// WhereNull keeps rows whose column is NULL.
func (q *Query) WhereNull(column string) *Query {
	return q.with(condition{column: column, isNull: true})
}

// WhereEq keeps rows whose column equals v.
func (q *Query) WhereEq(column string, v any) *Query {
	return q.with(condition{column: column, value: v})
}

func (q *Query) Offset(n int) *Query {
	next := *q
	next.offset = max(n, 0)
	return &next
}

func (q *Query) Limit(n int) *Query {
	next := *q
	next.limit = n
	return &next
}

// All returns the matching records in storage order, with their to-many
// relations loaded.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	pb := q.session.dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s", quoteIdents(q.model.ColumnNames()), quoteIdent(q.model.Table))
	sqlStr += q.whereClause(pb)

	switch {
	case q.limit >= 0:
		sqlStr += " LIMIT " + pb.Add(q.limit)
	case q.offset > 0:
		sqlStr += " LIMIT " + q.session.dialect.NoLimit()
	}
	if q.offset > 0 {
		sqlStr += " OFFSET " + pb.Add(q.offset)
	}

	rows, err := QueryRows(ctx, q.session.tx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.model.Table, q.session.dialect.MapError(err))
	}

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec := q.session.track(q.model, row)
		if q.session.isDeleted(rec) {
			continue
		}
		records = append(records, rec)
	}
	if err := q.session.loadRelations(ctx, q.model, records); err != nil {
		return nil, err
	}
	return records, nil
}

// One returns the first matching record, or ErrNotFound.
func (q *Query) One(ctx context.Context) (*Record, error) {
	records, err := q.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Count returns the number of matching rows, ignoring offset and limit.
func (q *Query) Count(ctx context.Context) (int64, error) {
	pb := q.session.dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(q.model.Table)) + q.whereClause(pb)

	var n int64
	if err := q.session.tx.QueryRowContext(ctx, sqlStr, pb.Params()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.model.Table, q.session.dialect.MapError(err))
	}
	return n, nil
}

func (q *Query) whereClause(pb ParamBuilder) string {
	if len(q.where) == 0 {
		return ""
	}
	parts := make([]string, len(q.where))
	for i, c := range q.where {
		if c.isNull {
			parts[i] = quoteIdent(c.column) + " IS NULL"
		} else {
			parts[i] = fmt.Sprintf("%s = %s", quoteIdent(c.column), pb.Add(c.value))
		}
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

// loadRelations fills the to-many fields of records with one batched query
// per relation.
func (s *Session) loadRelations(ctx context.Context, model *metadata.Model, records []*Record) error {
	relations := model.RelationFields()
	if len(relations) == 0 || len(records) == 0 {
		return nil
	}

	pks := make([]any, len(records))
	for i, rec := range records {
		pks[i] = rec.PK()
	}

	for _, f := range relations {
		rel := f.Relation
		pb := s.dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf("SELECT %s AS source_key, %s AS related_key FROM %s WHERE %s ORDER BY %s",
			quoteIdent(rel.SourceColumn()), quoteIdent(rel.KeyColumn()), quoteIdent(rel.Table()),
			inExpr(quoteIdent(rel.SourceColumn()), pb, pks), quoteIdent(rel.KeyColumn()))

		rows, err := QueryRows(ctx, s.tx, sqlStr, pb.Params()...)
		if err != nil {
			return fmt.Errorf("load %s.%s: %w", model.Name, f.Name, s.dialect.MapError(err))
		}

		grouped := make(map[string][]any)
		for _, row := range rows {
			key := fmt.Sprint(row["source_key"])
			grouped[key] = append(grouped[key], row["related_key"])
		}
		for _, rec := range records {
			ids := grouped[fmt.Sprint(rec.PK())]
			if ids == nil {
				ids = []any{}
			}
			rec.related[f.Name] = ids
		}
	}
	return nil
}
