package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/ashureev/scrum-ai/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// modernc applies _pragma parameters on every new connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_last_seen ON users(last_seen_at);

	CREATE TABLE IF NOT EXISTS local_state (
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	if err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	err := shared.RetryOnConflict(ctx, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.LastSeenAt.Unix(),
			user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`

	var rows int64
	err := shared.RetryOnConflict(ctx, "update last_seen", func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// GetIdleUsers retrieves users whose last activity is older than ttl.
func (s *SQLiteStore) GetIdleUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE last_seen_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query idle users: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle users rows", "error", closeErr)
		}
	}()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idle user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle users: %w", err)
	}
	return users, nil
}

// LoadChatHistory returns the persisted chat history.
func (s *SQLiteStore) LoadChatHistory(ctx context.Context, userID string) ([]domain.Message, error) {
	var messages []domain.Message
	if _, err := s.loadState(ctx, userID, KeyChatHistory, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SaveChatHistory overwrites the persisted chat history.
func (s *SQLiteStore) SaveChatHistory(ctx context.Context, userID string, messages []domain.Message) error {
	if messages == nil {
		messages = []domain.Message{}
	}
	return s.saveState(ctx, userID, KeyChatHistory, messages)
}

// LoadActiveConversation returns the persisted active conversation descriptor.
func (s *SQLiteStore) LoadActiveConversation(ctx context.Context, userID string) (*domain.ConversationDescriptor, error) {
	var conv domain.ConversationDescriptor
	found, err := s.loadState(ctx, userID, KeyActiveConversation, &conv)
	if err != nil || !found {
		return nil, err
	}
	return &conv, nil
}

// SaveActiveConversation overwrites or deletes the active conversation descriptor.
func (s *SQLiteStore) SaveActiveConversation(ctx context.Context, userID string, conv *domain.ConversationDescriptor) error {
	if conv == nil {
		return s.deleteState(ctx, userID, KeyActiveConversation)
	}
	return s.saveState(ctx, userID, KeyActiveConversation, conv)
}

// LoadSelectedProduct returns the persisted selected product.
func (s *SQLiteStore) LoadSelectedProduct(ctx context.Context, userID string) (*domain.Product, error) {
	var product domain.Product
	found, err := s.loadState(ctx, userID, KeySelectedProduct, &product)
	if err != nil || !found {
		return nil, err
	}
	return &product, nil
}

// SaveSelectedProduct overwrites or deletes the selected product.
func (s *SQLiteStore) SaveSelectedProduct(ctx context.Context, userID string, product *domain.Product) error {
	if product == nil {
		return s.deleteState(ctx, userID, KeySelectedProduct)
	}
	return s.saveState(ctx, userID, KeySelectedProduct, product)
}

// loadState decodes one key into dst. Malformed stored values are logged and
// treated as absent so one bad key never blocks the others.
func (s *SQLiteStore) loadState(ctx context.Context, userID, key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value_json FROM local_state WHERE user_id = ? AND key = ?`,
		userID, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		slog.Warn("Discarding malformed local state", "user_id", userID, "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) saveState(ctx context.Context, userID, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	query := `
	INSERT INTO local_state (user_id, key, value_json, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id, key) DO UPDATE SET
		value_json = excluded.value_json,
		updated_at = excluded.updated_at`

	err = shared.RetryOnConflict(ctx, "save "+key, func() error {
		_, err := s.db.ExecContext(ctx, query, userID, key, string(payload), time.Now().Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) deleteState(ctx context.Context, userID, key string) error {
	err := shared.RetryOnConflict(ctx, "delete "+key, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM local_state WHERE user_id = ? AND key = ?`, userID, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
