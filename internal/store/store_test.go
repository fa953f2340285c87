package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudkit/internal/config"
	"crudkit/internal/metadata"
)

const testSchema = `
CREATE TABLE authors (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);
CREATE TABLE books (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    title      TEXT NOT NULL,
    author_id  TEXT REFERENCES authors(id),
    published  INTEGER NOT NULL DEFAULT 0,
    deleted_at TEXT
);
CREATE TABLE tags (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL
);
CREATE TABLE book_tags (
    book_id INTEGER NOT NULL,
    tag_id  INTEGER NOT NULL
);
`

func testModels(t *testing.T) (author, book *metadata.Model) {
	t.Helper()
	author = &metadata.Model{
		Name:       "author",
		Table:      "authors",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: metadata.TypeUUID, Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeString},
			{Name: "book_ids", Type: metadata.TypeHasMany, Relation: &metadata.Relation{
				Type: metadata.RelationOneToMany, Target: "books", TargetKey: "author_id",
			}},
		},
	}
	book = &metadata.Model{
		Name:       "book",
		Table:      "books",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: metadata.TypeInt, Generated: true},
		SoftDelete: "deleted_at",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.TypeInt},
			{Name: "title", Type: metadata.TypeString},
			{Name: "author_id", Type: metadata.TypeUUID, Nullable: true},
			{Name: "published", Type: metadata.TypeBoolean},
			{Name: "deleted_at", Type: metadata.TypeTimestamp, Nullable: true},
			{Name: "tag_ids", Type: metadata.TypeHasMany, Relation: &metadata.Relation{
				Type: metadata.RelationManyToMany, JoinTable: "book_tags", SourceJoinKey: "book_id", TargetJoinKey: "tag_id",
			}},
		},
	}
	require.NoError(t, author.Validate())
	require.NoError(t, book.Validate())
	return author, book
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	_, err = s.DB.ExecContext(ctx, testSchema)
	require.NoError(t, err)
	return s
}

func TestScope_InsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	author, book := testModels(t)

	var authorID any
	err := s.Scope(ctx, func(sess *Session) error {
		a := NewRecord(author, map[string]any{"name": "Le Guin", "unknown": 1})
		sess.Add(a)
		b := NewRecord(book, map[string]any{"title": "Earthsea", "published": true})
		sess.Add(b)
		if err := sess.Commit(ctx); err != nil {
			return err
		}
		authorID = a.PK()
		assert.Equal(t, int64(1), b.PK(), "generated integer key is read back")
		assert.True(t, b.Persisted())
		return nil
	})
	require.NoError(t, err)
	require.IsType(t, "", authorID, "uuid generated in application code for sqlite")
	assert.Len(t, authorID.(string), 36)

	err = s.Scope(ctx, func(sess *Session) error {
		b, err := sess.Get(ctx, book, int64(1))
		require.NoError(t, err)
		assert.Equal(t, "Earthsea", b.Get("title"))
		assert.Equal(t, true, b.Get("published"), "sqlite integers normalized to bool")
		assert.Nil(t, b.Get("deleted_at"))
		assert.Equal(t, []any{}, b.Get("tag_ids"))

		again, err := sess.Get(ctx, book, int64(1))
		require.NoError(t, err)
		assert.Same(t, b, again, "identity map")
		return nil
	})
	require.NoError(t, err)
}

func TestSession_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, book := testModels(t)
	err := s.Scope(context.Background(), func(sess *Session) error {
		_, err := sess.Get(context.Background(), book, int64(99))
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScope_RollsBackWithoutCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, book := testModels(t)

	boom := errors.New("boom")
	err := s.Scope(ctx, func(sess *Session) error {
		sess.Add(NewRecord(book, map[string]any{"title": "lost"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = s.Scope(ctx, func(sess *Session) error {
			sess.Add(NewRecord(book, map[string]any{"title": "lost too"}))
			panic("crash")
		})
	})

	var n int64
	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		var err error
		n, err = sess.Query(book).Count(ctx)
		return err
	}))
	assert.Zero(t, n)
}

func TestSession_UpdateDeleteDetach(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, book := testModels(t)
	seedBooks(t, s, book, "a", "b", "c")

	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		a, err := sess.Get(ctx, book, int64(1))
		require.NoError(t, err)
		require.NoError(t, a.Set("title", "A"))
		assert.Error(t, a.Set("tag_ids", []any{1}))
		assert.Error(t, a.Set("nope", 1))

		b, err := sess.Get(ctx, book, int64(2))
		require.NoError(t, err)
		sess.Delete(b)

		c, err := sess.Get(ctx, book, int64(3))
		require.NoError(t, err)
		sess.Detach(c)
		assert.True(t, c.Detached())
		require.NoError(t, c.Set("title", "ignored"))
		return sess.Commit(ctx)
	}))

	rows, err := QueryRows(ctx, s.DB, "SELECT id, title FROM books ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0]["title"])
	assert.Equal(t, "c", rows[1]["title"])
}

func TestQuery_FiltersAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, book := testModels(t)
	seedBooks(t, s, book, "a", "b", "c", "d", "e")
	_, err := s.DB.ExecContext(ctx, "UPDATE books SET deleted_at = ?1 WHERE id = 2", time.Now())
	require.NoError(t, err)

	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		live := sess.Query(book).WhereNull("deleted_at")

		n, err := live.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		page, err := live.Offset(1).Limit(2).All(ctx)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "c", page[0].Get("title"))
		assert.Equal(t, "d", page[1].Get("title"))

		rest, err := live.Offset(3).All(ctx)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "e", rest[0].Get("title"))

		n, err = live.Offset(3).Limit(1).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n, "count ignores paging")

		_, err = live.WhereEq("id", int64(2)).One(ctx)
		assert.ErrorIs(t, err, ErrNotFound)

		deleted, err := sess.Get(ctx, book, int64(2))
		require.NoError(t, err)
		_, ok := deleted.Get("deleted_at").(time.Time)
		assert.True(t, ok, "timestamp text normalized to time.Time")
		return nil
	}))
}

func TestQuery_LoadsRelations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	author, book := testModels(t)

	_, err := s.DB.ExecContext(ctx, `
INSERT INTO authors (id, name) VALUES ('a1', 'one'), ('a2', 'two');
INSERT INTO books (id, title, author_id) VALUES (1, 'x', 'a1'), (2, 'y', 'a1'), (3, 'z', NULL);
INSERT INTO book_tags (book_id, tag_id) VALUES (1, 30), (1, 10), (2, 20);`)
	require.NoError(t, err)

	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		authors, err := sess.Query(author).All(ctx)
		require.NoError(t, err)
		require.Len(t, authors, 2)
		assert.Equal(t, []any{int64(1), int64(2)}, authors[0].Get("book_ids"))
		assert.Equal(t, []any{}, authors[1].Get("book_ids"))

		books, err := sess.Query(book).All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []any{int64(10), int64(30)}, books[0].Get("tag_ids"), "ordered by related key")
		assert.Equal(t, []any{int64(20)}, books[1].Get("tag_ids"))
		assert.Equal(t, []any{}, books[2].Get("tag_ids"))
		return nil
	}))
}

func TestCommit_MapsUniqueViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	author, _ := testModels(t)

	err := s.Scope(ctx, func(sess *Session) error {
		sess.Add(NewRecord(author, map[string]any{"name": "dup"}))
		sess.Add(NewRecord(author, map[string]any{"name": "dup"}))
		return sess.Commit(ctx)
	})
	assert.ErrorIs(t, err, ErrUniqueViolation)
}

func seedBooks(t *testing.T, s *Store, book *metadata.Model, titles ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		for _, title := range titles {
			sess.Add(NewRecord(book, map[string]any{"title": title}))
		}
		return sess.Commit(ctx)
	}))
}

func TestSession_InsertRespectsGeneratedKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	author, _ := testModels(t)
	manual := *author
	manual.PrimaryKey.Generated = false

	err := s.Scope(ctx, func(sess *Session) error {
		sess.Add(NewRecord(&manual, map[string]any{"name": "Butler"}))
		return sess.Commit(ctx)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not generated")

	err = s.Scope(ctx, func(sess *Session) error {
		sess.Add(NewRecord(&manual, map[string]any{"id": "octavia", "name": "Butler"}))
		return sess.Commit(ctx)
	})
	require.NoError(t, err)

	err = s.Scope(ctx, func(sess *Session) error {
		a, err := sess.Get(ctx, &manual, "octavia")
		require.NoError(t, err)
		assert.Equal(t, "Butler", a.Get("name"))
		return nil
	})
	require.NoError(t, err)
}
