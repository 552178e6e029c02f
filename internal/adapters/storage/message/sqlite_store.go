package message

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"gymhub/internal/adapters/storage"
	domain "gymhub/internal/domain/message"
)

// ErrNotFound is returned when no message has the requested ID.
var ErrNotFound = errors.New("message not found")

const selectColumns = `SELECT id, sender_id, sender_name, sender_role, content, created_at FROM chat_message`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts a Message. Messages are never updated.
// PRE: entity has been validated
// POST: Entity is persisted; a duplicate ID is an error
func (s *SQLiteStore) Save(ctx context.Context, m domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_message (id, sender_id, sender_name, sender_role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.SenderName, m.SenderRole, m.Content, storage.FormatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetByID retrieves a Message by its ID.
// PRE: id is non-empty
// POST: Returns the entity or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Message, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	m, err := scanMessage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	return m, err
}

// ListRecent returns the newest Limit messages created before filter.Before,
// in ascending (display) order.
// PRE: none
// POST: len(result) <= filter.Normalize().Limit; result sorted oldest first
func (s *SQLiteStore) ListRecent(ctx context.Context, filter ListFilter) ([]domain.Message, error) {
	filter = filter.Normalize()
	query := selectColumns
	var args []any
	if !filter.Before.IsZero() {
		query += ` WHERE created_at < ?`
		args = append(args, storage.FormatTime(filter.Before))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func scanMessage(scan func(dest ...any) error) (domain.Message, error) {
	var m domain.Message
	var createdAt string
	if err := scan(&m.ID, &m.SenderID, &m.SenderName, &m.SenderRole, &m.Content, &createdAt); err != nil {
		return domain.Message{}, err
	}
	m.CreatedAt, _ = storage.ParseTime(createdAt)
	return m, nil
}
