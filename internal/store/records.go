package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordStore is a minimal key-value contract for durable entity
// records. Goals and plans persist through it so the backend can be
// swapped without touching module logic.
type RecordStore interface {
	Put(ctx context.Context, bucket, id string, payload []byte) error
	Get(ctx context.Context, bucket, id string) ([]byte, error)
	List(ctx context.Context, bucket string) (map[string][]byte, error)
	Delete(ctx context.Context, bucket, id string) error
}

// ErrNotFound is returned by Get when no record exists for the id.
var ErrNotFound = sql.ErrNoRows

// Records implements RecordStore on the SQLite records table.
type Records struct {
	db *sql.DB
}

// NewRecords creates a record store over an open database.
func NewRecords(db *sql.DB) *Records {
	return &Records{db: db}
}

// Put inserts or replaces a record.
func (r *Records) Put(ctx context.Context, bucket, id string, payload []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := r.db.ExecContext(ctx, `INSERT INTO records(bucket, id, payload, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(bucket, id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		bucket, id, string(payload), now); err != nil {
		return fmt.Errorf("put record %s/%s: %w", bucket, id, err)
	}
	return nil
}

// Get fetches a record payload by bucket and id.
func (r *Records) Get(ctx context.Context, bucket, id string) ([]byte, error) {
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE bucket=? AND id=?`, bucket, id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record %s/%s: %w", bucket, id, err)
	}
	return []byte(payload), nil
}

// List returns all record payloads in a bucket keyed by id.
func (r *Records) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, payload FROM records WHERE bucket=?`, bucket)
	if err != nil {
		return nil, fmt.Errorf("query records %s: %w", bucket, err)
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out[id] = []byte(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records %s: %w", bucket, err)
	}
	return out, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (r *Records) Delete(ctx context.Context, bucket, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE bucket=? AND id=?`, bucket, id); err != nil {
		return fmt.Errorf("delete record %s/%s: %w", bucket, id, err)
	}
	return nil
}
