// Package persistence stores the catalog and run history in a single
// sqlite database accessed through sqlx.
package persistence

import (
	_ "embed"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// MemoryPath opens a private in-memory database, used by the one-shot CLI
// mode and tests.
const MemoryPath = ":memory:"

// Open connects to the sqlite database at path, creating the schema when
// missing. The pool is capped at one connection: sqlite serializes writers
// anyway, and a single shared connection sidesteps table-lock errors from
// the snapshot writer racing the API.
func Open(path string) (*sqlx.DB, error) {
	dsn := path + "?cache=shared&mode=rwc&_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"
	if path == MemoryPath {
		dsn = path + "?cache=shared&_busy_timeout=10000&_foreign_keys=on"
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return db, nil
}
