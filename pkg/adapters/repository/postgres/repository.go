package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

const (
	uniqueViolation = "23505"
	codeIndex       = "idx_items_code"
	primaryKey      = "items_pkey"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		destination_url TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_items_code ON items(code);
	CREATE INDEX IF NOT EXISTS idx_items_destination_url ON items(destination_url);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		type TEXT NOT NULL,
		occurred_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_item_id ON events(item_id);
	`
	_, err := db.Exec(query)
	return err
}

func (p *PostgresRepository) Close() error {
	return p.db.Close()
}

func (p *PostgresRepository) CreateItem(ctx context.Context, item *domain.Item) error {
	query := `INSERT INTO items (id, code, destination_url, image_url, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := p.db.ExecContext(ctx, query, item.ID, item.Code, item.DestinationURL, item.ImageURL,
		item.CreatedAt.UnixMilli(), item.UpdatedAt.UnixMilli())
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.Constraint {
			case codeIndex:
				return &domain.DuplicateCodeError{Code: item.Code}
			case primaryKey:
				return &domain.DuplicateIDError{ID: item.ID}
			}
		}
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (p *PostgresRepository) UpdateItem(ctx context.Context, item *domain.Item) error {
	query := `UPDATE items SET destination_url = $1, image_url = $2, updated_at = $3 WHERE id = $4`

	res, err := p.db.ExecContext(ctx, query, item.DestinationURL, item.ImageURL, item.UpdatedAt.UnixMilli(), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.NotFoundError{Message: "item not found"}
	}
	return nil
}

func (p *PostgresRepository) DeleteItem(ctx context.Context, id string) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE item_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	removed, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, &domain.NotFoundError{Message: "item not found"}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed, nil
}

const itemColumns = `id, code, destination_url, image_url, created_at, updated_at`

func (p *PostgresRepository) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	return p.getItem(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
}

func (p *PostgresRepository) GetItemByCode(ctx context.Context, code string) (*domain.Item, error) {
	return p.getItem(ctx, `SELECT `+itemColumns+` FROM items WHERE code = $1`, code)
}

func (p *PostgresRepository) GetItemByDestination(ctx context.Context, destinationURL string) (*domain.Item, error) {
	return p.getItem(ctx, `SELECT `+itemColumns+` FROM items WHERE destination_url = $1 ORDER BY created_at ASC, id ASC LIMIT 1`, destinationURL)
}

func (p *PostgresRepository) getItem(ctx context.Context, query string, arg any) (*domain.Item, error) {
	var (
		item             domain.Item
		created, updated int64
	)
	err := p.db.QueryRowContext(ctx, query, arg).
		Scan(&item.ID, &item.Code, &item.DestinationURL, &item.ImageURL, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Message: "item not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	item.CreatedAt = time.UnixMilli(created).UTC()
	item.UpdatedAt = time.UnixMilli(updated).UTC()
	return &item, nil
}

func (p *PostgresRepository) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		var (
			item             domain.Item
			created, updated int64
		)
		if err := rows.Scan(&item.ID, &item.Code, &item.DestinationURL, &item.ImageURL, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.CreatedAt = time.UnixMilli(created).UTC()
		item.UpdatedAt = time.UnixMilli(updated).UTC()
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (p *PostgresRepository) AppendEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("events", "id", "item_id", "type", "occurred_at"))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.ItemID, string(ev.Type), ev.Timestamp.UnixMilli()); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}
	// flush the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush events: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close statement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PostgresRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, item_id, type, occurred_at FROM events ORDER BY occurred_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
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
			return nil, fmt.Errorf("failed to scan event: %w", err)
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

func (p *PostgresRepository) PurgeOrphanEvents(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM events e WHERE NOT EXISTS (SELECT 1 FROM items i WHERE i.id = e.item_id)`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge orphan events: %w", err)
	}
	return res.RowsAffected()
}
