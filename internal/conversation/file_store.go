package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore keeps one JSON file per conversation under a directory,
// with a write-through in-memory cache. Safe for concurrent use.
type FileStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*record
}

type record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens the store, loading any existing conversation
// files. Files that fail to parse are skipped, not fatal.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating conversation directory: %w", err)
	}

	s := &FileStore{dir: dir, cache: map[string]*record{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading conversation directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil || rec.ID == "" {
			continue
		}
		s.cache[rec.ID] = &rec
	}
	return s, nil
}

func (s *FileStore) Create(_ context.Context, userID string) (string, error) {
	rec := &record{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(rec); err != nil {
		return "", err
	}
	s.cache[rec.ID] = rec
	return rec.ID, nil
}

func (s *FileStore) Append(_ context.Context, id string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cache[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Messages = append(rec.Messages, msg)
	rec.UpdatedAt = time.Now().UTC()
	return s.writeLocked(rec)
}

func (s *FileStore) Get(_ context.Context, id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.cache[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	msgs := make([]Message, len(rec.Messages))
	copy(msgs, rec.Messages)
	return msgs, nil
}

func (s *FileStore) History(ctx context.Context, id string, limit int) ([]Message, error) {
	msgs, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// List returns conversations for a user, newest first. Empty userID
// lists all.
func (s *FileStore) List(_ context.Context, userID string) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []Summary
	for _, rec := range s.cache {
		if userID != "" && rec.UserID != userID {
			continue
		}
		summaries = append(summaries, Summary{
			ID:        rec.ID,
			UserID:    rec.UserID,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
			Turns:     len(rec.Messages),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// writeLocked persists a record via temp-file rename so a crash never
// leaves a truncated conversation file.
func (s *FileStore) writeLocked(rec *record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}

	path := filepath.Join(s.dir, rec.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing conversation: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing conversation file: %w", err)
	}
	return nil
}

// FormatHistory renders prior turns as plain text for prompts.
func FormatHistory(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
