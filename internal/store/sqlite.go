package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/honeypot/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	sqliteRetries    = 3
	sqliteRetryDelay = 50 * time.Millisecond
)

// SQLiteBackend implements Backend on a local SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS list_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		list_key TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_list_items_key ON list_items(list_key, id);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := b.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Append inserts value and deletes everything older than the newest maxLen rows.
func (b *SQLiteBackend) Append(ctx context.Context, key, value string, maxLen int) error {
	return b.withTx(ctx, "append", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO list_items (list_key, value, created_at) VALUES (?, ?, ?)`,
			key, value, time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("insert list item: %w", err)
		}
		if maxLen <= 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM list_items
			WHERE list_key = ? AND id NOT IN (
				SELECT id FROM list_items WHERE list_key = ? ORDER BY id DESC LIMIT ?
			)`, key, key, maxLen)
		if err != nil {
			return fmt.Errorf("trim list: %w", err)
		}
		return nil
	})
}

// Range returns the list at key, oldest first.
func (b *SQLiteBackend) Range(ctx context.Context, key string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT value FROM list_items WHERE list_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("query list: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close list rows", "error", closeErr)
		}
	}()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan list item: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate list: %w", err)
	}
	return values, nil
}

// Replace deletes the list and inserts values in a single transaction.
func (b *SQLiteBackend) Replace(ctx context.Context, key string, values []string) error {
	return b.withTx(ctx, "replace", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM list_items WHERE list_key = ?`, key); err != nil {
			return fmt.Errorf("clear list: %w", err)
		}
		now := time.Now().Unix()
		for _, v := range values {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO list_items (list_key, value, created_at) VALUES (?, ?, ?)`,
				key, v, now,
			); err != nil {
				return fmt.Errorf("insert list item: %w", err)
			}
		}
		return nil
	})
}

// ReplaceIfEmpty inserts the first value only when no row exists for key.
// That insert takes the write lock, so a concurrent seed sees the row and
// affects nothing.
func (b *SQLiteBackend) ReplaceIfEmpty(ctx context.Context, key string, values []string) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	var replaced bool
	err := b.withTx(ctx, "replace if empty", func(tx *sql.Tx) error {
		replaced = false
		now := time.Now().Unix()
		result, err := tx.ExecContext(ctx, `
			INSERT INTO list_items (list_key, value, created_at)
			SELECT ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM list_items WHERE list_key = ?)`,
			key, values[0], now, key)
		if err != nil {
			return fmt.Errorf("insert first item: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}
		for _, v := range values[1:] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO list_items (list_key, value, created_at) VALUES (?, ?, ?)`,
				key, v, now,
			); err != nil {
				return fmt.Errorf("insert list item: %w", err)
			}
		}
		replaced = true
		return nil
	})
	return replaced, err
}

// SetIfAbsent relies on the primary key: a conflicting insert affects no rows.
func (b *SQLiteBackend) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	var inserted bool
	err := shared.RetryOnConflict(ctx, sqliteRetries, sqliteRetryDelay, func() error {
		result, err := b.db.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO NOTHING`, key, value, time.Now().Unix())
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		inserted = rows == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("set if absent: %w", err)
	}
	return inserted, nil
}

// Get returns the value at key.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get value: %w", err)
	}
	return v, true, nil
}

// Set upserts the value at key.
func (b *SQLiteBackend) Set(ctx context.Context, key, value string) error {
	err := shared.RetryOnConflict(ctx, sqliteRetries, sqliteRetryDelay, func() error {
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`, key, value, time.Now().Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("set value: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	err := shared.RetryOnConflict(ctx, sqliteRetries, sqliteRetryDelay, func() error {
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
