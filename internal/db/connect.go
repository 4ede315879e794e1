package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver maps a configuration value onto a Driver.
func ParseDriver(s string) (Driver, error) {
	switch Driver(s) {
	case DriverSQLite, "":
		return DriverSQLite, nil
	case DriverPostgres, "pgx":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("unsupported driver: %s", s)
}

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:grades.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/dojo?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

// solved_at is unix microseconds in both dialects.
const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'student',
  created_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dojos (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  course_json TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dojo_modules (
  dojo_id TEXT NOT NULL REFERENCES dojos(id) ON DELETE CASCADE,
  id TEXT NOT NULL,
  module_index INTEGER NOT NULL,
  name TEXT NOT NULL,
  PRIMARY KEY (dojo_id, id)
);

CREATE TABLE IF NOT EXISTS dojo_challenges (
  id INTEGER PRIMARY KEY,
  dojo_id TEXT NOT NULL,
  module_id TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  FOREIGN KEY (dojo_id, module_id) REFERENCES dojo_modules(dojo_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS solves (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  challenge_id INTEGER NOT NULL REFERENCES dojo_challenges(id) ON DELETE CASCADE,
  solved_at INTEGER NOT NULL,
  UNIQUE (user_id, challenge_id)
);

CREATE TABLE IF NOT EXISTS dojo_students (
  dojo_id TEXT NOT NULL REFERENCES dojos(id) ON DELETE CASCADE,
  user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token TEXT,
  PRIMARY KEY (dojo_id, user_id)
);

CREATE TABLE IF NOT EXISTS ctf_writeup_submissions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  url TEXT NOT NULL DEFAULT '',
  submitted_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_solves_user ON solves(user_id);
CREATE INDEX IF NOT EXISTS idx_writeups_user ON ctf_writeup_submissions(user_id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'student',
  created_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dojos (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  course_json TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dojo_modules (
  dojo_id TEXT NOT NULL REFERENCES dojos(id) ON DELETE CASCADE,
  id TEXT NOT NULL,
  module_index INTEGER NOT NULL,
  name TEXT NOT NULL,
  PRIMARY KEY (dojo_id, id)
);

CREATE TABLE IF NOT EXISTS dojo_challenges (
  id BIGINT PRIMARY KEY,
  dojo_id TEXT NOT NULL,
  module_id TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  FOREIGN KEY (dojo_id, module_id) REFERENCES dojo_modules(dojo_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS solves (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  challenge_id BIGINT NOT NULL REFERENCES dojo_challenges(id) ON DELETE CASCADE,
  solved_at BIGINT NOT NULL,
  UNIQUE (user_id, challenge_id)
);

CREATE TABLE IF NOT EXISTS dojo_students (
  dojo_id TEXT NOT NULL REFERENCES dojos(id) ON DELETE CASCADE,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token TEXT,
  PRIMARY KEY (dojo_id, user_id)
);

CREATE TABLE IF NOT EXISTS ctf_writeup_submissions (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  url TEXT NOT NULL DEFAULT '',
  submitted_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_solves_user ON solves(user_id);
CREATE INDEX IF NOT EXISTS idx_writeups_user ON ctf_writeup_submissions(user_id);
`
