package store

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

const driverName = "sqlite"

// casefoldFunc is the SQL name of the Unicode lower-casing scalar. SQLite's
// own lower() and LIKE only fold ASCII letters.
const casefoldFunc = "casefold"

func init() {
	// sqlx only knows the cgo driver name; modernc uses "?" placeholders too.
	sqlx.BindDriver(driverName, sqlx.QUESTION)

	if err := sqlite.RegisterDeterministicScalarFunction(casefoldFunc, 1, casefold); err != nil {
		panic(fmt.Sprintf("registering %s: %v", casefoldFunc, err))
	}
}

func casefold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Opener opens an engine handle for a DSN. It exists so tests can make
// open attempts fail on demand.
type Opener func(dsn string) (*sqlx.DB, error)

func defaultOpener(dsn string) (*sqlx.DB, error) {
	return sqlx.Open(driverName, dsn)
}

// pragmas are applied by the driver to every pooled connection, which
// matters for foreign_keys: it is per-connection state in SQLite.
var pragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=foreign_keys(1)",
}

const memoryDSN = ":memory:"

// fileDSN builds the DSN for the on-disk store: WAL journaling, NORMAL
// sync, and IMMEDIATE transactions so that writers queue on the busy
// timeout instead of failing on lock upgrade.
func fileDSN(path string) string {
	params := append([]string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_txlock=immediate",
	}, pragmas...)
	return path + "?" + strings.Join(params, "&")
}

func inMemoryDSN() string {
	return memoryDSN + "?" + strings.Join(pragmas, "&")
}

// openEngine opens the database at dsn, verifies the connection and runs
// any pending schema migrations. A failure anywhere closes the handle.
func openEngine(open Opener, dsn string, inMemory bool) (*sqlx.DB, error) {
	db, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if inMemory {
		// Every connection to :memory: is a separate database; keep one.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order, each in its own transaction.
func runMigrations(db *sqlx.DB) error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// storeFiles lists the primary store file and the engine's side files.
func storeFiles(path string) []string {
	return []string{path, path + "-wal", path + "-shm"}
}

// removeStoreFiles deletes exactly the primary file and its -wal/-shm
// side files. Missing files are not an error.
func removeStoreFiles(path string) error {
	var errs []error
	for _, f := range storeFiles(path) {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", f, err))
		}
	}
	return errors.Join(errs...)
}
