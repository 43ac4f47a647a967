package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open creates a Postgres connection with sane pool defaults.
func Open(connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return db, db.PingContext(context.Background())
}

// Postgres persists collection records as JSONB documents.
type Postgres struct {
	db *sql.DB

	mu       sync.RWMutex
	watchers []ChangeFunc
}

// NewPostgres creates a store backed by an open connection.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the backing tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)
	`)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			name       TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// List returns records in insertion order.
func (p *Postgres) List(ctx context.Context, collection string) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, data FROM records
		WHERE collection = $1
		ORDER BY created_at, id
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns a single record or nil.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT data FROM records WHERE collection = $1 AND id = $2
	`, collection, id)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeRecord(id, data)
}

// Insert writes a new record, assigning an id when absent.
func (p *Postgres) Insert(ctx context.Context, collection string, rec Record) (string, error) {
	stored := rec.Clone()
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO records (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`, collection, id, data)
	if err != nil {
		return "", err
	}
	p.notify(collection)
	return id, nil
}

// Upsert replaces the record stored under id.
func (p *Postgres) Upsert(ctx context.Context, collection, id string, rec Record) error {
	stored := rec.Clone()
	stored["id"] = id
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO records (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`, collection, id, data)
	if err != nil {
		return err
	}
	p.notify(collection)
	return nil
}

// Delete removes a record; deleting an absent record is not an error.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM records WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		p.notify(collection)
	}
	return nil
}

// GetDocument returns a singleton document or nil.
func (p *Postgres) GetDocument(ctx context.Context, name string) (Record, error) {
	row := p.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE name = $1`, name)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var doc Record
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SetDocument replaces a singleton document.
func (p *Postgres) SetDocument(ctx context.Context, name string, doc Record) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (name, data)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`, name, data)
	if err != nil {
		return err
	}
	p.notify(name)
	return nil
}

// Watch registers a change callback.
func (p *Postgres) Watch(fn ChangeFunc) {
	p.mu.Lock()
	p.watchers = append(p.watchers, fn)
	p.mu.Unlock()
}

func (p *Postgres) notify(collection string) {
	p.mu.RLock()
	watchers := make([]ChangeFunc, len(p.watchers))
	copy(watchers, p.watchers)
	p.mu.RUnlock()
	for _, fn := range watchers {
		fn(collection)
	}
}

func decodeRecord(id string, data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.ID() == "" {
		rec["id"] = id
	}
	return rec, nil
}
