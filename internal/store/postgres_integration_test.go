//go:build integration

package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"crudkit/internal/config"
)

const pgSchema = `
CREATE TABLE authors (
    id   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name TEXT NOT NULL UNIQUE
);
CREATE TABLE books (
    id         BIGSERIAL PRIMARY KEY,
    title      TEXT NOT NULL,
    author_id  UUID REFERENCES authors(id),
    published  BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ
);
CREATE TABLE book_tags (
    book_id BIGINT NOT NULL,
    tag_id  BIGINT NOT NULL
);
`

func testPostgresStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("crudkit_test"),
		postgres.WithUsername("crudkit"),
		postgres.WithPassword("crudkit"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	s, err := New(ctx, config.DatabaseConfig{
		Driver:   "postgres",
		Host:     host,
		Port:     portNum,
		User:     "crudkit",
		Password: "crudkit",
		Name:     "crudkit_test",
		PoolSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.DB.ExecContext(ctx, pgSchema)
	require.NoError(t, err)
	return s
}

func TestPostgres_RoundTrip(t *testing.T) {
	s := testPostgresStore(t)
	ctx := context.Background()
	author, book := testModels(t)

	var authorID, bookID any
	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		a := NewRecord(author, map[string]any{"name": "Butler"})
		sess.Add(a)
		if err := sess.Commit(ctx); err != nil {
			return err
		}
		authorID = a.PK()
		return nil
	}))
	require.NotNil(t, authorID, "uuid assigned by column default")

	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		b := NewRecord(book, map[string]any{"title": "Kindred", "author_id": authorID, "published": true})
		sess.Add(b)
		if err := sess.Commit(ctx); err != nil {
			return err
		}
		bookID = b.PK()
		return nil
	}))
	assert.Equal(t, int64(1), bookID)

	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		a, err := sess.Get(ctx, author, authorID)
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1)}, a.Get("book_ids"))

		b, err := sess.Query(book).WhereNull("deleted_at").WhereEq("id", bookID).One(ctx)
		require.NoError(t, err)
		assert.Equal(t, true, b.Get("published"))
		require.NoError(t, b.Set("deleted_at", time.Now().UTC()))
		return sess.Commit(ctx)
	}))

	require.NoError(t, s.Scope(ctx, func(sess *Session) error {
		n, err := sess.Query(book).WhereNull("deleted_at").Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))

	err := s.Scope(ctx, func(sess *Session) error {
		sess.Add(NewRecord(author, map[string]any{"name": "Butler"}))
		return sess.Commit(ctx)
	})
	assert.ErrorIs(t, err, ErrUniqueViolation)
}
