// Package store persists chat messages in SQLite and exposes a live query
// that re-emits a user's full message set whenever it changes. Writes are
// flat documents; ordering is restored client-side after each fetch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	chatmodel "github.com/sergiecode/gemini-chat-backend/internal/model/chat"
)

// ErrInvalidMessage marks a message rejected before any write was attempted.
var ErrInvalidMessage = errors.New("invalid message")

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	kind    TEXT NOT NULL,
	status  TEXT NOT NULL,
	sent_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	title         TEXT,
	created_at    INTEGER NOT NULL,
	last_activity INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_messages (
	conversation_id TEXT NOT NULL,
	position        INTEGER NOT NULL,
	user_id         TEXT NOT NULL,
	content         TEXT NOT NULL,
	kind            TEXT NOT NULL,
	status          TEXT NOT NULL,
	sent_at         INTEGER NOT NULL,
	PRIMARY KEY (conversation_id, position)
);
`

// Store wraps the SQLite database and the change-listener registry.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	watchers map[string]map[int]chan struct{}
	nextID   int
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{
		db:       db,
		watchers: make(map[string]map[int]chan struct{}),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes one message document and wakes watchers of that user.
// Timestamps are stored as unix milliseconds, the store-comparable form.
func (s *Store) Save(ctx context.Context, msg chatmodel.Message) error {
	if msg.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidMessage)
	}
	if msg.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	if msg.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidMessage)
	}

	status := msg.Status
	if status == "" {
		status = chatmodel.StatusSent
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, content, kind, status, sent_at) VALUES (?,?,?,?,?,?);`,
		uuid.NewString(), msg.UserID, msg.Content, string(msg.Kind), string(status), msg.SentAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	s.notify(msg.UserID)
	return nil
}

// WatchByUser emits the user's full message set immediately and again after
// every change, sorted ascending by SentAt. The query itself is unordered
// (equality filter only, no index dependency); ordering is restored here.
// Cancelling the context or calling the returned func releases the listener
// and closes the channel.
func (s *Store) WatchByUser(ctx context.Context, userID string) (<-chan []chatmodel.Message, func(), error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("%w: userId is required", ErrInvalidMessage)
	}

	wake := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.watchers[userID] == nil {
		s.watchers[userID] = make(map[int]chan struct{})
	}
	s.watchers[userID][id] = wake
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[userID], id)
			if len(s.watchers[userID]) == 0 {
				delete(s.watchers, userID)
			}
			s.mu.Unlock()
			close(done)
		})
	}

	out := make(chan []chatmodel.Message, 1)
	go func() {
		defer close(out)
		for {
			messages, err := s.listByUser(ctx, userID)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[store] watch query failed for user=%s: %v", userID, err)
				}
			} else {
				emit(out, messages)
			}

			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case <-wake:
			}
		}
	}()

	return out, cancel, nil
}

// SaveConversation bulk-writes a conversation aggregate in one transaction.
// Not used by the live send path.
func (s *Store) SaveConversation(ctx context.Context, conv chatmodel.Conversation) error {
	if conv.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidMessage)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := conv.ID
	if id == "" {
		id = uuid.NewString()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, last_activity) VALUES (?,?,?,?,?);`,
		id, conv.UserID, conv.Title, conv.CreatedAt.UnixMilli(), conv.LastActivity.UnixMilli()); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for i, msg := range conv.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_messages (conversation_id, position, user_id, content, kind, status, sent_at) VALUES (?,?,?,?,?,?,?);`,
			id, i, msg.UserID, msg.Content, string(msg.Kind), string(msg.Status), msg.SentAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert conversation message: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) listByUser(ctx context.Context, userID string) ([]chatmodel.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, kind, status, sent_at FROM messages WHERE user_id = ?;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chatmodel.Message
	for rows.Next() {
		var m chatmodel.Message
		var kind, status string
		var sentAt int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &kind, &status, &sentAt); err != nil {
			return nil, err
		}
		m.Kind = chatmodel.Kind(kind)
		m.Status = chatmodel.Status(status)
		m.SentAt = time.UnixMilli(sentAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	return messages, nil
}

// notify wakes every watcher of userID without blocking.
func (s *Store) notify(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wake := range s.watchers[userID] {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// emit delivers the latest snapshot, replacing any undelivered one.
func emit(out chan []chatmodel.Message, messages []chatmodel.Message) {
	select {
	case <-out:
	default:
	}
	out <- messages
}
