// Package migrate applies versioned SQL files to the service database and
// keeps a bookkeeping table of what already ran.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/obs"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Runner executes the migration and seed files found under its directories.
// Files run in lexical order; the NNNN_ prefix convention gives that order
// meaning.
type Runner struct {
	db      *sql.DB
	sqlDir  string
	seedDir string
}

// NewRunner constructs a Runner over an open database handle.
func NewRunner(db *sql.DB, sqlDir, seedDir string) *Runner {
	return &Runner{db: db, sqlDir: sqlDir, seedDir: seedDir}
}

// Up applies every pending .up.sql file and returns how many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return 0, err
	}
	done, err := r.applied(ctx, migrationsTable)
	if err != nil {
		return 0, err
	}
	files, err := listSQLFiles(r.sqlDir, ".up.sql")
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, f := range files {
		if done[f.name] {
			continue
		}
		if err := r.runFile(ctx, f.path); err != nil {
			return applied, fmt.Errorf("migrate %s: %w", f.name, err)
		}
		if err := r.record(ctx, migrationsTable, f.name); err != nil {
			return applied, err
		}
		obs.Log("info", "migration_applied", map[string]any{"name": f.name})
		applied++
	}
	return applied, nil
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return err
	}
	names, err := r.Status(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("migrate: nothing to roll back")
	}
	last := names[len(names)-1]
	down := filepath.Join(r.sqlDir, strings.TrimSuffix(last, ".up.sql")+".down.sql")
	if _, err := os.Stat(down); err != nil {
		return fmt.Errorf("migrate: no down file for %s", last)
	}
	if err := r.runFile(ctx, down); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		`delete from `+migrationsTable+` where name = $1`, last)
	if err == nil {
		obs.Log("info", "migration_rolled_back", map[string]any{"name": last})
	}
	return err
}

// Status returns the applied migrations in the order they ran.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`select name from `+migrationsTable+` order by applied_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Seed runs each seed file once. A missing seed directory is not an error.
func (r *Runner) Seed(ctx context.Context) (int, error) {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return 0, err
	}
	done, err := r.applied(ctx, seedsTable)
	if err != nil {
		return 0, err
	}
	files, err := listSQLFiles(r.seedDir, ".sql")
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, f := range files {
		if done[f.name] {
			continue
		}
		if err := r.runFile(ctx, f.path); err != nil {
			return applied, fmt.Errorf("seed %s: %w", f.name, err)
		}
		if err := r.record(ctx, seedsTable, f.name); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (r *Runner) ensureBookkeeping(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		_, err := r.db.ExecContext(ctx, `
			create table if not exists `+table+` (
				name text primary key,
				applied_at timestamptz not null default now()
			)`)
		if err != nil {
			return err
		}
	}
	return nil
}

// runFile executes the file's statements inside one transaction so a failing
// migration leaves the schema untouched.
func (r *Runner) runFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx,
		`insert into `+table+` (name, applied_at) values ($1, $2)`,
		name, time.Now().UTC())
	return err
}

func (r *Runner) applied(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `select name from `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

type sqlFile struct {
	name string
	path string
}

func listSQLFiles(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{name: d.Name(), path: path})
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// splitStatements breaks a file into statements on semicolons outside of
// single-quoted strings. Good enough for the DDL these migrations carry.
func splitStatements(src string) []string {
	var out []string
	var cur strings.Builder
	inString := false
	for _, r := range src {
		cur.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				out = append(out, cur.String())
				cur.Reset()
			}
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		out = append(out, cur.String())
	}
	return out
}
