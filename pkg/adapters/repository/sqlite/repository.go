package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	msqlite "modernc.org/sqlite"                         // Local SQLite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if driverName == "sqlite" {
		// single writer; also keeps shared-cache memory databases free of SQLITE_LOCKED
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		destination_url TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_items_code ON items(code);
	CREATE INDEX IF NOT EXISTS idx_items_destination_url ON items(destination_url);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		type TEXT NOT NULL,
		occurred_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_item_id ON events(item_id);
	`
	_, err := db.Exec(query)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateItem(ctx context.Context, item *domain.Item) error {
	query := `INSERT INTO items (id, code, destination_url, image_url, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, item.ID, item.Code, item.DestinationURL, item.ImageURL,
		item.CreatedAt.UnixMilli(), item.UpdatedAt.UnixMilli())
	if err != nil {
		switch uniqueColumn(err) {
		case "code":
			return &domain.DuplicateCodeError{Code: item.Code}
		case "id":
			return &domain.DuplicateIDError{ID: item.ID}
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateItem(ctx context.Context, item *domain.Item) error {
	query := `UPDATE items SET destination_url = ?, image_url = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, item.DestinationURL, item.ImageURL, item.UpdatedAt.UnixMilli(), item.ID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.NotFoundError{Message: "item not found"}
	}
	return nil
}

func (r *SQLiteRepository) DeleteItem(ctx context.Context, id string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// 1. Events first so a failure never leaves orphans behind
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE item_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	removed, _ := res.RowsAffected()

	// 2. The item itself
	res, err = tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, &domain.NotFoundError{Message: "item not found"}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

const itemColumns = `id, code, destination_url, image_url, created_at, updated_at`

func (r *SQLiteRepository) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	return r.getItem(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetItemByCode(ctx context.Context, code string) (*domain.Item, error) {
	return r.getItem(ctx, `SELECT `+itemColumns+` FROM items WHERE code = ?`, code)
}

// GetItemByDestination returns the oldest item pointing at destinationURL.
func (r *SQLiteRepository) GetItemByDestination(ctx context.Context, destinationURL string) (*domain.Item, error) {
	return r.getItem(ctx, `SELECT `+itemColumns+` FROM items WHERE destination_url = ? ORDER BY created_at ASC, id ASC LIMIT 1`, destinationURL)
}

func (r *SQLiteRepository) getItem(ctx context.Context, query string, arg any) (*domain.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Message: "item not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) AppendEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (id, item_id, type, occurred_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.ItemID, string(ev.Type), ev.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, item_id, type, occurred_at FROM events ORDER BY occurred_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var (
			ev       domain.Event
			typ      string
			occurred int64
		)
		if err := rows.Scan(&ev.ID, &ev.ItemID, &typ, &occurred); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = domain.EventType(typ)
		if parsed, err := domain.ParseEventType(typ); err == nil {
			ev.Type = parsed
		}
		ev.Timestamp = time.UnixMilli(occurred).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

// PurgeOrphanEvents removes events whose item no longer exists. Safe to rerun.
func (r *SQLiteRepository) PurgeOrphanEvents(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE item_id NOT IN (SELECT id FROM items)`)
	if err != nil {
		return 0, fmt.Errorf("purge orphan events: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item             domain.Item
		created, updated int64
	)
	if err := row.Scan(&item.ID, &item.Code, &item.DestinationURL, &item.ImageURL, &created, &updated); err != nil {
		return nil, err
	}
	item.CreatedAt = time.UnixMilli(created).UTC()
	item.UpdatedAt = time.UnixMilli(updated).UTC()
	return &item, nil
}

// uniqueColumn names the items column a unique violation hit, or "" when
// err is something else.
func uniqueColumn(err error) string {
	var se *msqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return ""
		}
	} else if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		// libsql reports constraint failures as plain text
		return ""
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "items.code"):
		return "code"
	case strings.Contains(msg, "items.id"):
		return "id"
	}
	return ""
}
