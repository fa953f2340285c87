package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"crudkit/internal/metadata"
)

// Session is a unit of work bound to one transaction. Reads go through an
// identity map so one row is represented by one Record per session. Added,
// changed and deleted records are flushed by Commit.
type Session struct {
	tx      *sql.Tx
	dialect Dialect

	identity  map[string]*Record
	tracked   []*Record
	added     []*Record
	deleted   []*Record
	committed bool
}

func newSession(tx *sql.Tx, dialect Dialect) *Session {
	return &Session{
		tx:       tx,
		dialect:  dialect,
		identity: make(map[string]*Record),
	}
}

// Get loads a record by primary key. Returns ErrNotFound if no row matches.
func (s *Session) Get(ctx context.Context, model *metadata.Model, pk any) (*Record, error) {
	if rec, ok := s.identity[identityKey(model, pk)]; ok && !s.isDeleted(rec) {
		return rec, nil
	}
	return s.Query(model).WhereEq(model.PrimaryKey.Field, pk).One(ctx)
}

// Query starts a query over the rows of model.
func (s *Session) Query(model *metadata.Model) *Query {
	return &Query{session: s, model: model, limit: -1}
}

// Add schedules an unsaved record for insertion.
func (s *Session) Add(rec *Record) {
	if rec.session == s {
		return
	}
	rec.session = s
	s.added = append(s.added, rec)
}

// Delete schedules a record for removal. An added record that was never
// flushed is simply dropped.
func (s *Session) Delete(rec *Record) {
	if i := slices.Index(s.added, rec); i >= 0 {
		s.added = slices.Delete(s.added, i, i+1)
		rec.session = nil
		return
	}
	if !s.isDeleted(rec) {
		s.deleted = append(s.deleted, rec)
	}
}

// Detach stops tracking rec. Its values stay readable; later changes to it
// are not written.
func (s *Session) Detach(rec *Record) {
	if rec.session != s {
		return
	}
	delete(s.identity, rec.identity())
	s.tracked = slices.DeleteFunc(s.tracked, func(r *Record) bool { return r == rec })
	s.added = slices.DeleteFunc(s.added, func(r *Record) bool { return r == rec })
	s.deleted = slices.DeleteFunc(s.deleted, func(r *Record) bool { return r == rec })
	rec.session = nil
}

// Commit flushes pending inserts, updates and deletes and commits the
// transaction. The session cannot be used afterwards.
func (s *Session) Commit(ctx context.Context) error {
	if s.committed {
		return fmt.Errorf("session already committed")
	}
	for _, rec := range s.added {
		if err := s.insert(ctx, rec); err != nil {
			return err
		}
	}
	s.added = nil

	for _, rec := range s.tracked {
		if s.isDeleted(rec) {
			continue
		}
		if err := s.update(ctx, rec); err != nil {
			return err
		}
	}

	for _, rec := range s.deleted {
		if err := s.remove(ctx, rec); err != nil {
			return err
		}
	}
	s.deleted = nil

	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.committed = true
	return nil
}

func (s *Session) isDeleted(rec *Record) bool {
	return slices.Contains(s.deleted, rec)
}

// track registers a loaded row, returning the record already tracked for the
// same key if there is one.
func (s *Session) track(model *metadata.Model, row map[string]any) *Record {
	key := identityKey(model, model.GetField(model.PrimaryKey.Field).FromDB(row[model.PrimaryKey.Field]))
	if rec, ok := s.identity[key]; ok {
		return rec
	}
	rec := NewRecord(model, nil)
	rec.load(row)
	rec.session = s
	s.identity[key] = rec
	s.tracked = append(s.tracked, rec)
	return rec
}

func (s *Session) insert(ctx context.Context, rec *Record) error {
	model := rec.Model
	pkField := model.PrimaryKey.Field
	if rec.PK() == nil {
		if !model.PrimaryKey.Generated {
			return fmt.Errorf("insert %s: primary key %s is not generated and was not set", model.Table, pkField)
		}
		if model.PrimaryKey.Type == metadata.TypeUUID && s.dialect.UUIDDefault() == "" {
			rec.values[pkField] = GenerateUUID()
		}
	}

	pb := s.dialect.NewParamBuilder()
	var cols, phs []string
	for _, name := range model.ColumnNames() {
		v, ok := rec.values[name]
		if !ok || (name == pkField && v == nil) {
			continue
		}
		cols = append(cols, quoteIdent(name))
		phs = append(phs, pb.Add(v))
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s", quoteIdent(model.Table))
	if len(cols) == 0 {
		sqlStr += " DEFAULT VALUES"
	} else {
		sqlStr += fmt.Sprintf(" (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(phs, ", "))
	}
	sqlStr += " RETURNING " + quoteIdents(model.ColumnNames())

	rows, err := QueryRows(ctx, s.tx, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", model.Table, s.dialect.MapError(err))
	}
	if len(rows) != 1 {
		return fmt.Errorf("insert %s: expected 1 returned row, got %d", model.Table, len(rows))
	}
	rec.load(rows[0])
	s.identity[rec.identity()] = rec
	s.tracked = append(s.tracked, rec)
	return nil
}

func (s *Session) update(ctx context.Context, rec *Record) error {
	cols := rec.dirtyColumns()
	if len(cols) == 0 {
		return nil
	}
	model := rec.Model
	pb := s.dialect.NewParamBuilder()
	sets := make([]string, len(cols))
	for i, name := range cols {
		sets[i] = fmt.Sprintf("%s = %s", quoteIdent(name), pb.Add(rec.values[name]))
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		quoteIdent(model.Table), strings.Join(sets, ", "),
		quoteIdent(model.PrimaryKey.Field), pb.Add(rec.PK()))

	if _, err := Exec(ctx, s.tx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("update %s: %w", model.Table, s.dialect.MapError(err))
	}
	clear(rec.dirty)
	return nil
}

func (s *Session) remove(ctx context.Context, rec *Record) error {
	model := rec.Model
	pb := s.dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		quoteIdent(model.Table), quoteIdent(model.PrimaryKey.Field), pb.Add(rec.PK()))

	if _, err := Exec(ctx, s.tx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("delete %s: %w", model.Table, s.dialect.MapError(err))
	}
	delete(s.identity, rec.identity())
	rec.persisted = false
	return nil
}
