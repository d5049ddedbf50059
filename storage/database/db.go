package database

import (
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/darasa/core"
	appfs "github.com/trezcool/darasa/fs"
)

const (
	// MigrationsDir is the directory of the embedded migrations.
	MigrationsDir = "migrations"

	// maintenanceDB is always there to connect to before the app's DB exists.
	maintenanceDB = "postgres"

	readyAttempts = 30
)

func dsn(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	q := make(url.Values)
	q.Set("sslmode", "require")
	if conf.Database.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func Open(conf *core.Config) (*sql.DB, error) {
	return sql.Open(conf.Database.Engine, dsn(conf.Database.Name, false, conf))
}

// OpenX wraps an open handle for the sqlx repositories; both share the same pool.
func OpenX(db *sql.DB, conf *core.Config) *sqlx.DB {
	return sqlx.NewDb(db, conf.Database.Engine)
}

// waitReady pings until the server accepts connections, waiting 100ms longer after each failure.
func waitReady(db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return errors.Wrap(err, "DB ping timeout")
}

// withMaintenanceDB runs fn on a short-lived connection to the maintenance DB.
func withMaintenanceDB(conf *core.Config, admin bool, fn func(db *sql.DB) error) error {
	db, err := sql.Open(conf.Database.Engine, dsn(maintenanceDB, admin, conf))
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = waitReady(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	return fn(db)
}

func exists(db *sql.DB, q string, arg interface{}) (bool, error) {
	var found bool
	err := db.QueryRow("SELECT EXISTS ("+q+")", arg).Scan(&found)
	return found, err
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}
	found, err := exists(db, "SELECT 1 FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if found {
		return nil
	}

	// utility statements take no bind parameters
	q := "CREATE USER " + pq.QuoteIdentifier(conf.Database.User) + " CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Database.Password)
	if _, err = db.Exec(q); err != nil {
		return errors.Wrap(err, "creating app user")
	}
	return nil
}

func createDB(db *sql.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT 1 FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if found {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// CreateIfNotExist creates the app user as admin, then the app DB as that user so that it owns it.
func CreateIfNotExist(conf *core.Config) error {
	err := withMaintenanceDB(conf, true, func(db *sql.DB) error {
		return createAppUser(db, conf)
	})
	if err != nil {
		return errors.Wrap(err, "creating app user")
	}

	err = withMaintenanceDB(conf, false, func(db *sql.DB) error {
		return createDB(db, conf)
	})
	return errors.Wrap(err, "creating database")
}

func Migrate(db *sql.DB) error {
	if err := goose.Up(db, appfs.FS, MigrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
