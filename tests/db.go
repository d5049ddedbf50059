package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/darasa/storage/database"
)

// DBTestsEnv must be set for the repository tests to run against postgres.
const DBTestsEnv = "DATABASE_TESTS"

// OpenDB connects to a migrated, empty test database named after the config's with suffix appended.
// Test packages run in parallel, so each one passes its own suffix.
// The test is skipped unless DBTestsEnv is set.
func OpenDB(t *testing.T, suffix string) *sql.DB {
	t.Helper()
	if os.Getenv(DBTestsEnv) == "" {
		t.Skipf("%s not set: skipping postgres tests", DBTestsEnv)
	}

	conf := *NewConfig()
	conf.Database.Name += "_test_" + suffix

	if err := database.CreateIfNotExist(&conf); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	db, err := database.Open(&conf)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	// every other table cascades from these two
	if _, err = db.Exec(`TRUNCATE "user", subject CASCADE`); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

// OpenDBX is OpenDB wrapped for the sqlx repositories.
func OpenDBX(t *testing.T, suffix string) *sqlx.DB {
	t.Helper()
	return database.OpenX(OpenDB(t, suffix), NewConfig())
}
