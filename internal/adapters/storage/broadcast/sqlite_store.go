package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gymhub/internal/adapters/storage"
	domain "gymhub/internal/domain/broadcast"
)

// ErrNotFound is returned when no broadcast has the requested ID.
var ErrNotFound = errors.New("broadcast not found")

const selectColumns = `SELECT id, sender_id, sender_name, audio_key, audio_url, content_type, size_bytes, created_at, expires_at FROM voice_broadcast`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts a Broadcast.
// PRE: entity has been validated
// POST: Entity is persisted
func (s *SQLiteStore) Save(ctx context.Context, b domain.Broadcast) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO voice_broadcast (id, sender_id, sender_name, audio_key, audio_url, content_type, size_bytes, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SenderID, b.SenderName, b.AudioKey, b.AudioURL, b.ContentType, b.SizeBytes,
		storage.FormatTime(b.CreatedAt), storage.FormatTime(b.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert broadcast: %w", err)
	}
	return nil
}

// GetByID retrieves a Broadcast by its ID.
// PRE: id is non-empty
// POST: Returns the entity or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Broadcast, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	b, err := scanBroadcast(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Broadcast{}, ErrNotFound
	}
	return b, err
}

// ListActive returns broadcasts still playable at now, oldest first.
// POST: every result has ExpiresAt > now
func (s *SQLiteStore) ListActive(ctx context.Context, now time.Time) ([]domain.Broadcast, error) {
	return s.list(ctx, selectColumns+` WHERE expires_at > ? ORDER BY created_at ASC, id ASC`, storage.FormatTime(now))
}

// ListExpiredBefore returns broadcasts whose ExpiresAt is at or before cutoff.
func (s *SQLiteStore) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]domain.Broadcast, error) {
	return s.list(ctx, selectColumns+` WHERE expires_at <= ? ORDER BY expires_at ASC`, storage.FormatTime(cutoff))
}

// Delete removes a Broadcast row. Deleting a missing ID is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM voice_broadcast WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]domain.Broadcast, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	var results []domain.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

func scanBroadcast(scan func(dest ...any) error) (domain.Broadcast, error) {
	var b domain.Broadcast
	var createdAt, expiresAt string
	err := scan(&b.ID, &b.SenderID, &b.SenderName, &b.AudioKey, &b.AudioURL, &b.ContentType, &b.SizeBytes, &createdAt, &expiresAt)
	if err != nil {
		return domain.Broadcast{}, err
	}
	b.CreatedAt, _ = storage.ParseTime(createdAt)
	b.ExpiresAt, _ = storage.ParseTime(expiresAt)
	return b, nil
}
