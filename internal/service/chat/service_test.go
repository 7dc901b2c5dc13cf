package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergiecode/gemini-chat-backend/internal/gemini"
	chatmodel "github.com/sergiecode/gemini-chat-backend/internal/model/chat"
)

type fakeModel struct {
	mu         sync.Mutex
	configured bool
	reply      string
	err        error
	calls      int
	gotMessage string
	gotHistory []gemini.Content
	onComplete func()
}

func (m *fakeModel) Complete(_ context.Context, message string, history []gemini.Content) (string, error) {
	m.mu.Lock()
	m.calls++
	m.gotMessage = message
	m.gotHistory = history
	hook := m.onComplete
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *fakeModel) Configured() bool { return m.configured }

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeStore struct {
	mu         sync.Mutex
	saved      []chatmodel.Message
	saveErr    error
	watchCh    chan []chatmodel.Message
	watchErr   error
	watchCalls int
	released   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{watchCh: make(chan []chatmodel.Message, 4)}
}

func (s *fakeStore) Save(_ context.Context, msg chatmodel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, msg)
	return nil
}

func (s *fakeStore) WatchByUser(_ context.Context, _ string) (<-chan []chatmodel.Message, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchCalls++
	if s.watchErr != nil {
		return nil, nil, s.watchErr
	}
	return s.watchCh, func() {
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
	}, nil
}

func (s *fakeStore) savedMessages() []chatmodel.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatmodel.Message, len(s.saved))
	copy(out, s.saved)
	return out
}

func TestSendOptimisticAppendBeforeModelCall(t *testing.T) {
	model := &fakeModel{configured: true, reply: "Hi there"}
	store := newFakeStore()
	svc := NewService(model, store)

	var seenAtCall []chatmodel.Message
	model.onComplete = func() {
		seenAtCall = svc.Messages("u1")
	}

	require.NoError(t, svc.Send(context.Background(), "u1", "Hello"))

	// The user message was already visible when the model was invoked.
	require.Len(t, seenAtCall, 1)
	assert.Equal(t, chatmodel.KindUser, seenAtCall[0].Kind)
	assert.Equal(t, "Hello", seenAtCall[0].Content)
	assert.Equal(t, chatmodel.StatusSending, seenAtCall[0].Status)
}

func TestSendEmptyInputIsNoOp(t *testing.T) {
	model := &fakeModel{configured: true, reply: "unused"}
	store := newFakeStore()
	svc := NewService(model, store)

	for _, input := range []string{"", "   ", "\t\n"} {
		require.NoError(t, svc.Send(context.Background(), "u1", input))
	}

	assert.Zero(t, model.callCount())
	assert.Empty(t, store.savedMessages())
	assert.Empty(t, svc.Messages("u1"))
}

func TestSendRequiresAuthenticatedUser(t *testing.T) {
	svc := NewService(&fakeModel{configured: true}, newFakeStore())

	err := svc.Send(context.Background(), "", "Hello")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSendHappyPath(t *testing.T) {
	model := &fakeModel{configured: true, reply: "Hi there"}
	store := newFakeStore()
	svc := NewService(model, store)

	require.NoError(t, svc.Send(context.Background(), "u1", "Hello"))

	messages := svc.Messages("u1")
	require.Len(t, messages, 2)
	assert.Equal(t, chatmodel.KindUser, messages[0].Kind)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, chatmodel.StatusSending, messages[0].Status)
	assert.Equal(t, chatmodel.KindAssistant, messages[1].Kind)
	assert.Equal(t, "Hi there", messages[1].Content)
	assert.Equal(t, chatmodel.StatusSent, messages[1].Status)

	assert.False(t, svc.Responding("u1"))

	saved := store.savedMessages()
	require.Len(t, saved, 2)
	assert.Equal(t, chatmodel.KindUser, saved[0].Kind)
	assert.Equal(t, chatmodel.KindAssistant, saved[1].Kind)
}

func TestSendTrimsContent(t *testing.T) {
	model := &fakeModel{configured: true, reply: "ok"}
	svc := NewService(model, newFakeStore())

	require.NoError(t, svc.Send(context.Background(), "u1", "  Hello  "))

	assert.Equal(t, "Hello", svc.Messages("u1")[0].Content)
	assert.Equal(t, "Hello", model.gotMessage)
}

func TestSendModelFailurePersistsErrorMessage(t *testing.T) {
	model := &fakeModel{configured: true, err: gemini.ErrRateLimited}
	store := newFakeStore()
	svc := NewService(model, store)

	err := svc.Send(context.Background(), "u1", "Hello")
	assert.ErrorIs(t, err, gemini.ErrRateLimited)

	// The error notice goes to the store; the live subscription is what
	// would bring it into view, so local state holds only the user turn.
	messages := svc.Messages("u1")
	require.Len(t, messages, 1)
	assert.Equal(t, chatmodel.KindUser, messages[0].Kind)

	saved := store.savedMessages()
	require.Len(t, saved, 2)
	assert.Equal(t, chatmodel.StatusError, saved[1].Status)
	assert.Equal(t, FallbackText, saved[1].Content)

	assert.False(t, svc.Responding("u1"))
}

func TestSendModelFailureWithStoreDownAppendsLocally(t *testing.T) {
	model := &fakeModel{configured: true, err: gemini.ErrUpstream}
	store := newFakeStore()
	store.saveErr = errors.New("store unreachable")
	svc := NewService(model, store)

	err := svc.Send(context.Background(), "u1", "Hello")
	assert.ErrorIs(t, err, gemini.ErrUpstream)

	// Fallback path: the failed error-message save appends it directly.
	messages := svc.Messages("u1")
	require.Len(t, messages, 2)
	assert.Equal(t, chatmodel.KindUser, messages[0].Kind)
	assert.Equal(t, chatmodel.KindAssistant, messages[1].Kind)
	assert.Equal(t, chatmodel.StatusError, messages[1].Status)
	assert.Equal(t, FallbackText, messages[1].Content)

	assert.False(t, svc.Responding("u1"))
}

func TestSendPersistenceFailureKeepsLocalMessages(t *testing.T) {
	model := &fakeModel{configured: true, reply: "Hi there"}
	store := newFakeStore()
	store.saveErr = errors.New("store unreachable")
	svc := NewService(model, store)

	require.NoError(t, svc.Send(context.Background(), "u1", "Hello"))

	// Both turns stay visible even though nothing was persisted.
	messages := svc.Messages("u1")
	require.Len(t, messages, 2)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, "Hi there", messages[1].Content)
}

func TestSendRespondingFlagTrueDuringModelCall(t *testing.T) {
	model := &fakeModel{configured: true, reply: "ok"}
	store := newFakeStore()
	svc := NewService(model, store)

	var flagDuringCall bool
	model.onComplete = func() {
		flagDuringCall = svc.Responding("u1")
	}

	require.NoError(t, svc.Send(context.Background(), "u1", "Hello"))

	assert.True(t, flagDuringCall)
	assert.False(t, svc.Responding("u1"))
}

func TestSendHistoryWindowUsesLastSixMessages(t *testing.T) {
	model := &fakeModel{configured: true, reply: "ok"}
	store := newFakeStore()
	svc := NewService(model, store)

	require.NoError(t, svc.Initialize(context.Background(), "u1"))

	prior := make([]chatmodel.Message, 0, 7)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		kind := chatmodel.KindUser
		if i%2 == 1 {
			kind = chatmodel.KindAssistant
		}
		prior = append(prior, chatmodel.Message{
			UserID: "u1", Content: "old", Kind: kind, Status: chatmodel.StatusSent,
			SentAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	store.watchCh <- prior
	require.Eventually(t, func() bool {
		return len(svc.Messages("u1")) == 7
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Send(context.Background(), "u1", "newest"))

	// 7 prior plus the optimistic turn, windowed to the last 6; the new
	// user turn closes the window and is also sent separately.
	require.Len(t, model.gotHistory, 6)
	assert.Equal(t, "newest", model.gotHistory[5].Parts[0].Text)
	assert.Equal(t, gemini.RoleUser, model.gotHistory[5].Role)
}

func TestInitializeReplacesStateOnEmission(t *testing.T) {
	store := newFakeStore()
	svc := NewService(&fakeModel{configured: true}, store)

	require.NoError(t, svc.Initialize(context.Background(), "u1"))

	set := []chatmodel.Message{
		{UserID: "u1", Content: "restored", Kind: chatmodel.KindUser, Status: chatmodel.StatusSent},
	}
	store.watchCh <- set

	require.Eventually(t, func() bool {
		messages := svc.Messages("u1")
		return len(messages) == 1 && messages[0].Content == "restored"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInitializeSingleFlight(t *testing.T) {
	store := newFakeStore()
	svc := NewService(&fakeModel{configured: true}, store)

	require.NoError(t, svc.Initialize(context.Background(), "u1"))
	require.NoError(t, svc.Initialize(context.Background(), "u1"))

	store.mu.Lock()
	calls := store.watchCalls
	store.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestInitializeRequiresUser(t *testing.T) {
	svc := NewService(&fakeModel{configured: true}, newFakeStore())
	assert.ErrorIs(t, svc.Initialize(context.Background(), ""), ErrNotAuthenticated)
}

func TestInitializeWatchErrorLeavesEmptyState(t *testing.T) {
	store := newFakeStore()
	store.watchErr = errors.New("listener refused")
	svc := NewService(&fakeModel{configured: true}, store)

	// Subscription failure is logged, not surfaced.
	require.NoError(t, svc.Initialize(context.Background(), "u1"))
	assert.Empty(t, svc.Messages("u1"))
}

func TestClearEmptiesStateAndReleasesWatch(t *testing.T) {
	store := newFakeStore()
	svc := NewService(&fakeModel{configured: true}, store)

	require.NoError(t, svc.Initialize(context.Background(), "u1"))
	store.watchCh <- []chatmodel.Message{{UserID: "u1", Content: "x", Kind: chatmodel.KindUser}}
	require.Eventually(t, func() bool {
		return len(svc.Messages("u1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	svc.Clear("u1")

	assert.Empty(t, svc.Messages("u1"))
	store.mu.Lock()
	released := store.released
	store.mu.Unlock()
	assert.True(t, released)
}

func TestReady(t *testing.T) {
	configured := NewService(&fakeModel{configured: true}, newFakeStore())
	unconfigured := NewService(&fakeModel{configured: false}, newFakeStore())

	assert.True(t, configured.Ready("u1"))
	assert.False(t, configured.Ready(""))
	assert.False(t, unconfigured.Ready("u1"))
}
