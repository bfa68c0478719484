// Package contextsource implements concrete promptcontext.ContextLoader
// back-ends (spec.md §6): a Postgres-backed catalog, a web-scraping
// loader, and a filesystem loader with hot reload. Each is an external
// collaborator behind the opaque ContextLoader interface the dynamic
// context engine consumes.
package contextsource

import (
	"context"
	"fmt"

	"github.com/flowmind-ai/pipeline/promptcontext"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLoader fetches a variant's section catalog from a Postgres
// table shaped like:
//
//	id text, name text, content text, topics text[], always_include bool, priority int
type PostgresLoader struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresLoader builds a loader against pool. table defaults to
// "context_sections".
func NewPostgresLoader(pool *pgxpool.Pool, table string) *PostgresLoader {
	if table == "" {
		table = "context_sections"
	}
	return &PostgresLoader{pool: pool, table: table}
}

func (l *PostgresLoader) Load(ctx context.Context, req promptcontext.LoadRequest) ([]promptcontext.Section, error) {
	variant := req.Variant
	if variant == "" {
		variant = "default"
	}

	query := fmt.Sprintf(
		`SELECT id, name, content, topics, always_include, priority FROM %s WHERE variant = $1 ORDER BY priority DESC`,
		l.table,
	)
	rows, err := l.pool.Query(ctx, query, variant)
	if err != nil {
		return nil, fmt.Errorf("contextsource: postgres query failed: %w", err)
	}
	defer rows.Close()

	var sections []promptcontext.Section
	for rows.Next() {
		var id, name, content string
		var topics []string
		var alwaysInclude bool
		var priority int
		if err := rows.Scan(&id, &name, &content, &topics, &alwaysInclude, &priority); err != nil {
			return nil, fmt.Errorf("contextsource: scan row: %w", err)
		}
		section := promptcontext.NewSection(id, content, topics, alwaysInclude, priority)
		section.Name = name
		sections = append(sections, section)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contextsource: row iteration failed: %w", err)
	}
	return sections, nil
}
