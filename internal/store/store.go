// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/scrum-ai/internal/domain"
)

// Local state keys. Each is loaded independently when a session manager starts.
const (
	KeyChatHistory        = "chat_history"
	KeyActiveConversation = "active_conversation"
	KeySelectedProduct    = "selected_product"
)

// Repository defines the interface for persisting device users and their
// assistant-local state.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetIdleUsers returns users not seen within ttl.
	GetIdleUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error)

	// LoadChatHistory returns the persisted message list, or nil when none.
	LoadChatHistory(ctx context.Context, userID string) ([]domain.Message, error)

	// SaveChatHistory overwrites the persisted message list.
	SaveChatHistory(ctx context.Context, userID string, messages []domain.Message) error

	// LoadActiveConversation returns the persisted descriptor, or nil when none.
	LoadActiveConversation(ctx context.Context, userID string) (*domain.ConversationDescriptor, error)

	// SaveActiveConversation overwrites the descriptor. A nil descriptor deletes it.
	SaveActiveConversation(ctx context.Context, userID string, conv *domain.ConversationDescriptor) error

	// LoadSelectedProduct returns the persisted product, or nil when none.
	LoadSelectedProduct(ctx context.Context, userID string) (*domain.Product, error)

	// SaveSelectedProduct overwrites the product. A nil product deletes it.
	SaveSelectedProduct(ctx context.Context, userID string, product *domain.Product) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
