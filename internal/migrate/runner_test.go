package migrate

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func expectBookkeeping(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_seeds")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestRunnerUpAppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	writeMigration(t, dir, "0001_init.up.sql", "create table a (id text);")
	writeMigration(t, dir, "0002_next.up.sql", "create table b (id text);")

	expectBookkeeping(mock)
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))

	// Only the second file runs.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations")).
		WithArgs("0002_next.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	runner := NewRunner(db, dir, "")
	n, err := runner.Up(context.Background())
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunnerUpMissingDirIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectBookkeeping(mock)
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	runner := NewRunner(db, filepath.Join(t.TempDir(), "does-not-exist"), "")
	n, err := runner.Up(context.Background())
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if n != 0 {
		t.Fatalf("applied = %d, want 0", n)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("create table a (id text); insert into a values ('x;y'); ")
	if len(stmts) != 2 {
		t.Fatalf("statements = %d, want 2: %q", len(stmts), stmts)
	}
}
