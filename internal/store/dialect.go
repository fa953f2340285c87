package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crudkit/internal/config"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// UUIDDefault returns the DDL DEFAULT clause for auto-generated UUIDs,
	// or empty string if UUIDs must be generated in application code.
	UUIDDefault() string

	// NoLimit returns the LIMIT operand meaning "all rows", used when a
	// query has an offset but no limit.
	NoLimit() string

	// Configure applies connection settings after the pool is opened.
	Configure(ctx context.Context, db *sql.DB, cfg config.DatabaseConfig) error

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// inExpr expands values into "field IN (p1, p2, ...)".
func inExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=0"
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(phs, ", "))
}

// quoteIdent quotes a validated identifier so reserved words such as "order"
// can be used as table or column names.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// --- PostgreSQL ParamBuilder ---

type pgParamBuilder struct {
	params []any
}

func (p *pgParamBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", len(p.params))
}

func (p *pgParamBuilder) Params() []any { return p.params }

// --- SQLite ParamBuilder ---

type sqliteParamBuilder struct {
	params []any
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", len(p.params))
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
