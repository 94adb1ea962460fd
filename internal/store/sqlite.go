// Package store persists finished match results.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pong-arena/internal/game"
)

// SQLite stores match results in a local SQLite database.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps :memory: databases shared across calls.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	db := &SQLite{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database.
func (db *SQLite) Close() error {
	return db.conn.Close()
}

func (db *SQLite) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS match_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id INTEGER NOT NULL,
		winner_id TEXT NOT NULL,
		loser_id TEXT NOT NULL,
		score1 INTEGER NOT NULL DEFAULT 0,
		score2 INTEGER NOT NULL DEFAULT 0,
		forfeit INTEGER NOT NULL DEFAULT 0,
		ended_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_results_winner ON match_results(winner_id);
	CREATE INDEX IF NOT EXISTS idx_match_results_loser ON match_results(loser_id);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveOutcome inserts one result row.
func (db *SQLite) SaveOutcome(ctx context.Context, o game.Outcome) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO match_results (match_id, winner_id, loser_id, score1, score2, forfeit, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(o.MatchID), o.Winner.PlayerID, o.Loser.PlayerID, o.Score1, o.Score2, o.Forfeit, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save match %s: %w", o.MatchID, err)
	}
	return nil
}

// CountResults returns the number of stored results.
func (db *SQLite) CountResults(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM match_results").Scan(&n)
	return n, err
}
