package sqlstore

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Dialect captures what differs between the supported databases. Queries
// use $N placeholders and ON CONFLICT upserts, which both accept.
type Dialect struct {
	Name   string
	Driver string
	Schema string
}

// Postgres is the production dialect
var Postgres = Dialect{
	Name:   "postgres",
	Driver: "postgres",
	Schema: `CREATE TABLE IF NOT EXISTS organizations (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	contact_name  TEXT NOT NULL,
	contact_email TEXT NOT NULL,
	contact_phone TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

// SQLite is used for local runs and tests
var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite3",
	Schema: `CREATE TABLE IF NOT EXISTS organizations (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	contact_name  TEXT NOT NULL,
	contact_email TEXT NOT NULL,
	contact_phone TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

// DialectByName resolves "postgres" or "sqlite"
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// SingleConnection reports whether dsn names a database that only exists
// inside one connection, such as an unshared in-memory SQLite database
func (d Dialect) SingleConnection(dsn string) bool {
	return d.Driver == SQLite.Driver && strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "cache=shared")
}

const (
	queryGet = `SELECT id, name, contact_name, contact_email, contact_phone
FROM organizations WHERE id = $1`

	queryGetAll = `SELECT id, name, contact_name, contact_email, contact_phone
FROM organizations ORDER BY id`

	querySave = `INSERT INTO organizations (id, name, contact_name, contact_email, contact_phone)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	contact_name = excluded.contact_name,
	contact_email = excluded.contact_email,
	contact_phone = excluded.contact_phone,
	updated_at = CURRENT_TIMESTAMP`

	queryDelete = `DELETE FROM organizations WHERE id = $1`
)
