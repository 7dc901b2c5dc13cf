// Package chat orchestrates the conversation flow: optimistic local state,
// model completion, and best-effort persistence. The UI-visible message
// list never waits on storage succeeding.
package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sergiecode/gemini-chat-backend/internal/gemini"
	chatmodel "github.com/sergiecode/gemini-chat-backend/internal/model/chat"
	"github.com/sergiecode/gemini-chat-backend/pkg/observable"
)

// ErrNotAuthenticated rejects a send with no user identity attached.
var ErrNotAuthenticated = errors.New("no authenticated user")

// FallbackText is appended as an assistant message when a completion fails.
const FallbackText = "Sorry, there was a problem processing your message. Please try again."

// historyWindow is how many locally-held messages feed the model request
// context; the gemini package applies its own pairing rule on top.
const historyWindow = 6

// Completer is the slice of the model client the orchestrator needs; tests
// substitute fakes.
type Completer interface {
	Complete(ctx context.Context, message string, history []gemini.Content) (string, error)
	Configured() bool
}

// MessageStore is the persistence surface the orchestrator depends on.
type MessageStore interface {
	Save(ctx context.Context, msg chatmodel.Message) error
	WatchByUser(ctx context.Context, userID string) (<-chan []chatmodel.Message, func(), error)
}

// Service holds per-user conversation state as observable values.
type Service struct {
	model Completer
	store MessageStore

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	messages   *observable.Value[[]chatmodel.Message]
	responding *observable.Value[bool]

	mu             sync.Mutex
	loadingHistory bool
	stopWatch      func()
}

// NewService wires the orchestrator to its collaborators.
func NewService(model Completer, store MessageStore) *Service {
	return &Service{
		model:    model,
		store:    store,
		sessions: make(map[string]*session),
	}
}

// Initialize starts the live history subscription for userID. It is a
// single-flight operation: while a load is in progress, or once a watch is
// active, further calls are no-ops. Each store emission replaces local
// state wholesale. A subscription failure logs, leaves an empty list, and
// is not retried.
func (s *Service) Initialize(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	sess := s.session(userID)

	sess.mu.Lock()
	if sess.loadingHistory || sess.stopWatch != nil {
		sess.mu.Unlock()
		return nil
	}
	sess.loadingHistory = true
	sess.mu.Unlock()

	// The subscription outlives the request that started it.
	watchCtx, cancelCtx := context.WithCancel(context.Background())
	ch, release, err := s.store.WatchByUser(watchCtx, userID)
	if err != nil {
		cancelCtx()
		log.Printf("[chat] history subscription failed for user=%s: %v", userID, err)
		sess.messages.Set([]chatmodel.Message{})
		sess.setLoading(false)
		return nil
	}

	sess.mu.Lock()
	sess.stopWatch = func() {
		release()
		cancelCtx()
	}
	sess.mu.Unlock()

	go func() {
		for messages := range ch {
			if messages == nil {
				messages = []chatmodel.Message{}
			}
			sess.messages.Set(messages)
			sess.setLoading(false)
		}
		sess.setLoading(false)
	}()

	return nil
}

// Send runs one message exchange. The user message becomes visible locally
// before any network round trip; persistence of both sides is best-effort.
// Failures from the model client propagate to the caller after local state
// and the responding flag are consistent.
func (s *Service) Send(ctx context.Context, userID, text string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	sess := s.session(userID)

	userMsg := chatmodel.Message{
		UserID:  userID,
		Content: trimmed,
		SentAt:  time.Now(),
		Kind:    chatmodel.KindUser,
		Status:  chatmodel.StatusSending,
	}
	sess.append(userMsg)

	if err := s.store.Save(ctx, userMsg); err != nil {
		// The message is already visible locally; storage is best-effort.
		log.Printf("[chat] failed to persist user message: %v", err)
	}

	sess.responding.Set(true)
	defer sess.responding.Set(false)

	current := sess.messages.Get()
	recent := current
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	history := gemini.HistoryFromMessages(recent)

	reply, err := s.model.Complete(ctx, trimmed, history)
	if err != nil {
		errMsg := chatmodel.Message{
			UserID:  userID,
			Content: FallbackText,
			SentAt:  time.Now(),
			Kind:    chatmodel.KindAssistant,
			Status:  chatmodel.StatusError,
		}
		if saveErr := s.store.Save(ctx, errMsg); saveErr != nil {
			// Storage is unreachable too; show the notice locally so the
			// user still sees something.
			log.Printf("[chat] failed to persist error message: %v", saveErr)
			sess.append(errMsg)
		}
		return err
	}

	assistantMsg := chatmodel.Message{
		UserID:  userID,
		Content: reply,
		SentAt:  time.Now(),
		Kind:    chatmodel.KindAssistant,
		Status:  chatmodel.StatusSent,
	}
	sess.append(assistantMsg)

	if err := s.store.Save(ctx, assistantMsg); err != nil {
		log.Printf("[chat] failed to persist assistant message: %v", err)
	}

	return nil
}

// Messages returns a snapshot of the user's in-memory list.
func (s *Service) Messages(userID string) []chatmodel.Message {
	sess := s.session(userID)
	current := sess.messages.Get()
	out := make([]chatmodel.Message, len(current))
	copy(out, current)
	return out
}

// Clear empties local state and releases the history subscription. Used on
// sign-out; persisted copies are untouched.
func (s *Service) Clear(userID string) {
	sess := s.session(userID)

	sess.mu.Lock()
	stop := sess.stopWatch
	sess.stopWatch = nil
	sess.loadingHistory = false
	sess.mu.Unlock()

	if stop != nil {
		stop()
	}
	sess.messages.Set([]chatmodel.Message{})
}

// Ready reports whether sends can succeed: a user is present and the model
// client has a real credential.
func (s *Service) Ready(userID string) bool {
	return userID != "" && s.model.Configured()
}

// SubscribeMessages exposes the message-list observable for live feeds.
func (s *Service) SubscribeMessages(userID string) (<-chan []chatmodel.Message, func()) {
	return s.session(userID).messages.Subscribe()
}

// SubscribeResponding exposes the assistant-responding flag observable.
func (s *Service) SubscribeResponding(userID string) (<-chan bool, func()) {
	return s.session(userID).responding.Subscribe()
}

// Responding reports whether an exchange is currently awaiting the model.
func (s *Service) Responding(userID string) bool {
	return s.session(userID).responding.Get()
}

func (s *Service) session(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{
			messages:   observable.New([]chatmodel.Message{}),
			responding: observable.New(false),
		}
		s.sessions[userID] = sess
	}
	return sess
}

func (sess *session) append(msg chatmodel.Message) {
	current := sess.messages.Get()
	next := make([]chatmodel.Message, len(current), len(current)+1)
	copy(next, current)
	sess.messages.Set(append(next, msg))
}

func (sess *session) setLoading(loading bool) {
	sess.mu.Lock()
	sess.loadingHistory = loading
	sess.mu.Unlock()
}
