// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs no C
// toolchain and tests can run against ":memory:".
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB     : a connection pool (NOT a single connection!)
//   - sql.Tx     : a transaction
//   - sql.Row    : a single result row
//   - sql.Rows   : multiple result rows (must be closed!)
//
// TRANSACTIONS:
// Everything that spans more than one row a user would expect to change together
// (both sides of a friendship, a trade and its request, a message and the chat
// preview, a collection plan and its version) goes through withTx.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository interface.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/poketrade.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
//
// SINGLE CONNECTION:
// SQLite allows one writer at a time, and each connection to ":memory:" is its own
// empty database. The pool is capped at one connection so that every query sees the
// same database and transactions queue instead of failing with SQLITE_BUSY.
// Consequence: never run a query on db.conn while a *sql.Rows or *sql.Tx is open.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL (Write-Ahead Logging) lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn in a transaction, committing if fn returns nil and rolling back otherwise.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate runs all database migrations.
// CREATE TABLE IF NOT EXISTS keeps it safe to run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id               TEXT PRIMARY KEY,
			email            TEXT NOT NULL DEFAULT '',
			google_sub       TEXT NOT NULL DEFAULT '',
			password_hash    TEXT NOT NULL DEFAULT '',
			display_name     TEXT NOT NULL,
			search_name      TEXT NOT NULL DEFAULT '',
			photo_url        TEXT NOT NULL DEFAULT '',
			bio              TEXT NOT NULL DEFAULT '',
			age              INTEGER NOT NULL DEFAULT 0,
			friend_code      TEXT NOT NULL UNIQUE,
			location         TEXT NOT NULL DEFAULT '',
			favorite_pokemon TEXT NOT NULL DEFAULT '',
			favorite_card    TEXT NOT NULL DEFAULT '',
			rating           REAL NOT NULL DEFAULT 0,
			created_at       DATETIME NOT NULL,
			updated_at       DATETIME NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_google_sub ON users(google_sub) WHERE google_sub <> '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// rating_count arrived with trade ratings; older databases lack it.
	if err := db.addColumnIfNotExists("users", "rating_count",
		"INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding rating_count to users: %w", err)
	}

	// One row per card. The version row is bumped by every plan applied to the
	// collection and is what optimistic concurrency checks against.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS collection_entries (
			user_id    TEXT NOT NULL REFERENCES users(id),
			kind       TEXT NOT NULL,
			card_id    TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			image      TEXT NOT NULL DEFAULT '',
			quantity   INTEGER NOT NULL CHECK (quantity > 0),
			set_id     TEXT NOT NULL DEFAULT '',
			set_name   TEXT NOT NULL DEFAULT '',
			favorite   INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, kind, card_id)
		);
		CREATE TABLE IF NOT EXISTS collection_versions (
			user_id TEXT NOT NULL REFERENCES users(id),
			kind    TEXT NOT NULL,
			version INTEGER NOT NULL,
			PRIMARY KEY (user_id, kind)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating collection tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			id           TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL REFERENCES users(id),
			type         TEXT NOT NULL,
			sender_id    TEXT NOT NULL DEFAULT '',
			sender_name  TEXT NOT NULL DEFAULT '',
			message      TEXT NOT NULL DEFAULT '',
			ref_id       TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT '',
			read         INTEGER NOT NULL DEFAULT 0,
			created_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(type, sender_id, recipient_id, status);

		CREATE TABLE IF NOT EXISTS friendships (
			user_id    TEXT NOT NULL REFERENCES users(id),
			friend_id  TEXT NOT NULL REFERENCES users(id),
			created_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, friend_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating social tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id                TEXT PRIMARY KEY,
			initiator_id      TEXT NOT NULL REFERENCES users(id),
			target_id         TEXT NOT NULL REFERENCES users(id),
			target_card_id    TEXT NOT NULL,
			target_card_name  TEXT NOT NULL DEFAULT '',
			target_card_image TEXT NOT NULL DEFAULT '',
			target_quantity   INTEGER NOT NULL,
			status            TEXT NOT NULL,
			created_at        DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_initiator ON trades(initiator_id);
		CREATE INDEX IF NOT EXISTS idx_trades_target ON trades(target_id);

		CREATE TABLE IF NOT EXISTS trade_offers (
			trade_id TEXT NOT NULL REFERENCES trades(id),
			position INTEGER NOT NULL,
			card_id  TEXT NOT NULL,
			name     TEXT NOT NULL DEFAULT '',
			image    TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL,
			PRIMARY KEY (trade_id, card_id)
		);

		CREATE TABLE IF NOT EXISTS trade_ratings (
			trade_id   TEXT NOT NULL REFERENCES trades(id),
			rater_id   TEXT NOT NULL REFERENCES users(id),
			ratee_id   TEXT NOT NULL REFERENCES users(id),
			score      INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
			created_at DATETIME NOT NULL,
			PRIMARY KEY (trade_id, rater_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating trade tables: %w", err)
	}

	// messages.seq gives a total order inside a chat even when two messages share
	// a timestamp; created_at never decreases along seq.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			id             TEXT PRIMARY KEY,
			trade_id       TEXT NOT NULL UNIQUE REFERENCES trades(id),
			participant_a  TEXT NOT NULL,
			participant_b  TEXT NOT NULL,
			last_text      TEXT NOT NULL DEFAULT '',
			last_sender_id TEXT NOT NULL DEFAULT '',
			last_at        DATETIME,
			created_at     DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			chat_id     TEXT NOT NULL REFERENCES chats(id),
			sender_id   TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			text        TEXT NOT NULL,
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, seq);
	`)
	if err != nil {
		return fmt.Errorf("creating chat tables: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so it is safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// foldName produces the value stored in users.search_name and compared against
// search queries. cases.Fold handles non-ASCII names ("Flabébé") that SQLite's LIKE
// only folds for ASCII.
func foldName(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
