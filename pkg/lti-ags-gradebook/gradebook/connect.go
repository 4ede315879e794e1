package gradebook

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migrate applies the schema for the selected driver (idempotent CREATE IF NOT EXISTS).
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var schema string
	switch normalizeDriver(driver) {
	case "postgres", "postgresql":
		schema = schemaPostgres
	case "sqlite", "sqlite3":
		schema = schemaSQLite
	default:
		return fmt.Errorf("unsupported driver %q (expected postgres/sqlite)", driver)
	}

	// Try to run as a single script first; if driver rejects multi statements, fall back to splitting.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range splitSQL(schema) {
			if _, e := db.ExecContext(ctx, stmt); e != nil {
				return fmt.Errorf("migration failed at: %s\nerror: %w", firstLine(stmt), e)
			}
		}
	}
	return nil
}

func normalizeDriver(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	switch d {
	case "pgx", "pgsql":
		return "postgres"
	}
	return d
}

// splitSQL naively splits on ';' boundaries; the DDL below has no bodies.
func splitSQL(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p+";")
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// ------------------------ Schemas ------------------------

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS lti_platforms (
  issuer              TEXT PRIMARY KEY,
  client_id           TEXT NOT NULL,
  token_url           TEXT NOT NULL,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- course placement captured at launch, a dojo may be placed several times
CREATE TABLE IF NOT EXISTS lti_links (
  id                  BIGSERIAL PRIMARY KEY,
  dojo_id             TEXT NOT NULL,
  platform_issuer     TEXT NOT NULL REFERENCES lti_platforms(issuer) ON DELETE CASCADE,
  deployment_id       TEXT NOT NULL,
  context_id          TEXT NOT NULL,
  resource_link_id    TEXT NOT NULL,
  lineitems_url       TEXT,
  scopes              JSONB,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE(platform_issuer, deployment_id, context_id, resource_link_id)
);

CREATE TABLE IF NOT EXISTS lti_user_map (
  platform_issuer     TEXT NOT NULL,
  platform_sub        TEXT NOT NULL,
  local_user_id       TEXT NOT NULL,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (platform_issuer, platform_sub)
);

CREATE TABLE IF NOT EXISTS gradebook_lineitems (
  id                  BIGSERIAL PRIMARY KEY,
  dojo_id             TEXT NOT NULL,
  platform_issuer     TEXT NOT NULL,
  deployment_id       TEXT NOT NULL,
  context_id          TEXT NOT NULL,
  resource_link_id    TEXT NOT NULL,
  label               TEXT NOT NULL,
  score_max           DOUBLE PRECISION NOT NULL,
  line_item_url       TEXT NOT NULL,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (dojo_id, platform_issuer, deployment_id, context_id, resource_link_id)
);

CREATE TABLE IF NOT EXISTS grade_sync_status (
  dojo_id             TEXT NOT NULL,
  user_id             BIGINT NOT NULL,
  status              TEXT NOT NULL CHECK (status IN ('pending','ok','failed')),
  retries             INT NOT NULL DEFAULT 0,
  last_error          TEXT,
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (dojo_id, user_id)
);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS lti_platforms (
  issuer              TEXT PRIMARY KEY,
  client_id           TEXT NOT NULL,
  token_url           TEXT NOT NULL,
  created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS lti_links (
  id                  INTEGER PRIMARY KEY AUTOINCREMENT,
  dojo_id             TEXT NOT NULL,
  platform_issuer     TEXT NOT NULL REFERENCES lti_platforms(issuer) ON DELETE CASCADE,
  deployment_id       TEXT NOT NULL,
  context_id          TEXT NOT NULL,
  resource_link_id    TEXT NOT NULL,
  lineitems_url       TEXT,
  scopes              TEXT, -- JSON array as TEXT
  created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(platform_issuer, deployment_id, context_id, resource_link_id),
  CHECK (scopes IS NULL OR json_valid(scopes))
);

CREATE TABLE IF NOT EXISTS lti_user_map (
  platform_issuer     TEXT NOT NULL,
  platform_sub        TEXT NOT NULL,
  local_user_id       TEXT NOT NULL,
  created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (platform_issuer, platform_sub)
);

CREATE TABLE IF NOT EXISTS gradebook_lineitems (
  id                  INTEGER PRIMARY KEY AUTOINCREMENT,
  dojo_id             TEXT NOT NULL,
  platform_issuer     TEXT NOT NULL,
  deployment_id       TEXT NOT NULL,
  context_id          TEXT NOT NULL,
  resource_link_id    TEXT NOT NULL,
  label               TEXT NOT NULL,
  score_max           REAL NOT NULL,
  line_item_url       TEXT NOT NULL,
  created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (dojo_id, platform_issuer, deployment_id, context_id, resource_link_id)
);

CREATE TABLE IF NOT EXISTS grade_sync_status (
  dojo_id             TEXT NOT NULL,
  user_id             INTEGER NOT NULL,
  status              TEXT NOT NULL CHECK (status IN ('pending','ok','failed')),
  retries             INTEGER NOT NULL DEFAULT 0,
  last_error          TEXT,
  updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (dojo_id, user_id)
);
`
