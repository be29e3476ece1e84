package db

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationFiles returns the embedded migrations in apply order.
func MigrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadMigration returns the SQL of one embedded migration.
func ReadMigration(name string) (string, error) {
	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read migration file %s: %w", name, err)
	}
	return string(content), nil
}

func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	files, err := MigrationFiles()
	if err != nil {
		return err
	}

	for _, fileName := range files {
		var alreadyApplied bool
		err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", fileName).Scan(&alreadyApplied)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", fileName, err)
		}
		if alreadyApplied {
			continue
		}

		content, err := ReadMigration(fileName)
		if err != nil {
			return err
		}

		zap.S().Named("db").Infow("applying migration", "file", fileName)
		if _, err = pool.Exec(ctx, content); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", fileName, err)
		}

		if _, err = pool.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", fileName); err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", fileName, err)
		}
	}

	return nil
}

// RequiredTables maps each table to the unique key the stores upsert on.
var RequiredTables = map[string][]string{
	"opportunities": {"external_id", "source"},
	"scoring_cache": {"user_id", "project_id", "opportunity_id"},
	"projects":      {"id"},
	"profiles":      {"user_id"},
}

// VerifySchema checks that every required table exists and carries its
// unique key. It returns one problem string per missing piece.
func VerifySchema(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	var problems []string

	tables := make([]string, 0, len(RequiredTables))
	for t := range RequiredTables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, table := range tables {
		var exists bool
		if err := pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", "public."+table).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			problems = append(problems, "missing table "+table)
			continue
		}

		var hasKey bool
		err := pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM pg_index i
				JOIN pg_class c ON c.oid = i.indrelid
				WHERE c.relname = $1
				  AND (i.indisunique OR i.indisprimary)
				  AND (
					SELECT array_agg(a.attname::text ORDER BY a.attname)
					FROM pg_attribute a
					WHERE a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
				  ) = (SELECT array_agg(x ORDER BY x) FROM unnest($2::text[]) AS x)
			)
		`, table, RequiredTables[table]).Scan(&hasKey)
		if err != nil {
			return nil, fmt.Errorf("check unique key on %s: %w", table, err)
		}
		if !hasKey {
			problems = append(problems, fmt.Sprintf("missing unique key (%s) on %s", strings.Join(RequiredTables[table], ", "), table))
		}
	}
	return problems, nil
}
