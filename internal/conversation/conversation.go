// Package conversation persists chat history, one JSON file per
// conversation, and supplies prior-turn context to the planning stage.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/lexarch/lexarch/internal/retriever"
)

// ErrNotFound is returned for unknown conversation IDs.
var ErrNotFound = errors.New("conversation not found")

// Message is one turn of a conversation. Assistant turns carry the
// pipeline's plan, selected documents, and citations for audit.
type Message struct {
	Role      string               `json:"role"`
	Content   string               `json:"content"`
	Timestamp time.Time            `json:"timestamp"`
	Steps     []string             `json:"steps,omitempty"`
	Documents []string             `json:"documents,omitempty"`
	Citations []retriever.Citation `json:"citations,omitempty"`
}

// Summary is a conversation listing entry.
type Summary struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     int       `json:"turns"`
}

// Store is the conversation persistence interface.
type Store interface {
	Create(ctx context.Context, userID string) (string, error)
	Append(ctx context.Context, id string, msg Message) error
	Get(ctx context.Context, id string) ([]Message, error)
	// History returns the most recent limit messages in order.
	History(ctx context.Context, id string, limit int) ([]Message, error)
	List(ctx context.Context, userID string) ([]Summary, error)
}
