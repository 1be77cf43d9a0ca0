// Package migrate applies versioned SQL migrations from a directory.
// Files are named NNNN_name.up.sql / NNNN_name.down.sql and applied in
// lexical order; applied versions are tracked in schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Manager runs migrations against one database.
type Manager struct {
	db  *sql.DB
	dir string
}

// New builds a manager for the migration directory.
func New(db *sql.DB, dir string) *Manager {
	return &Manager{db: db, dir: dir}
}

type migration struct {
	version string
	name    string
	upPath  string
}

// Up applies every pending migration and returns the versions applied.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	migrations, err := m.discover()
	if err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, mig := range migrations {
		if applied[mig.version] {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return done, fmt.Errorf("migration %s: %w", mig.version, err)
		}
		done = append(done, mig.version)
	}
	return done, nil
}

// Down rolls back the most recently applied migration.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return "", err
	}

	var version, name string
	err := m.db.QueryRowContext(ctx,
		`select version, name from schema_migrations order by version desc limit 1`).
		Scan(&version, &name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("read applied migrations: %w", err)
	}

	downPath := filepath.Join(m.dir, fmt.Sprintf("%s_%s.down.sql", version, name))
	data, err := os.ReadFile(downPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", downPath, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(string(data)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return "", fmt.Errorf("exec: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`delete from schema_migrations where version=$1`, version); err != nil {
		return "", fmt.Errorf("unrecord: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return version, nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx,
		`create table if not exists schema_migrations (
			version text primary key,
			name text not null,
			applied_at timestamptz not null default now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func (m *Manager) discover() ([]migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	var out []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		base := strings.TrimSuffix(name, ".up.sql")
		version, rest, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("bad migration filename %q", name)
		}
		out = append(out, migration{
			version: version,
			name:    rest,
			upPath:  filepath.Join(m.dir, name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (m *Manager) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `select version from schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *Manager) apply(ctx context.Context, mig migration) error {
	data, err := os.ReadFile(mig.upPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", mig.upPath, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(string(data)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`insert into schema_migrations (version, name) values ($1, $2)`,
		mig.version, mig.name); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

// splitStatements breaks a migration file into statements on semicolons,
// skipping blank chunks and full-line comments. Good enough for DDL;
// procedural bodies with embedded semicolons do not appear here.
func splitStatements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
