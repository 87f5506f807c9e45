package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/peerprep/matching-server-go/internal/config"
)

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

var _ DBTX = (*sqlx.DB)(nil)
var _ DBTX = (*sqlx.Tx)(nil)

type DB struct {
	*sqlx.DB
}

func Connect(databaseURL string) (*DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	return &DB{db}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS match_history (
	match_id      TEXT PRIMARY KEY,
	user1_id      TEXT NOT NULL,
	user2_id      TEXT NOT NULL,
	partition_key TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	resolved_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_history_resolved_at ON match_history (resolved_at);
CREATE INDEX IF NOT EXISTS idx_match_history_user1 ON match_history (user1_id);
CREATE INDEX IF NOT EXISTS idx_match_history_user2 ON match_history (user2_id);
`

// EnsureSchema creates the history table and its indexes when missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
