package message

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AhinsaKavindi22/real-time-chat-application/internal/domain"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/repository"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/ws"
)

type memMessageRepo struct {
	mu        sync.Mutex
	messages  []*domain.Message
	nextSeq   int64
	createErr error
}

func (m *memMessageRepo) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	msg.Seq = m.nextSeq
	stored := *msg
	m.messages = append(m.messages, &stored)
	return nil
}

func (m *memMessageRepo) ListConversation(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Message, 0)
	for _, msg := range m.messages {
		if (msg.SenderID == userA && msg.ReceiverID == userB) || (msg.SenderID == userB && msg.ReceiverID == userA) {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *memMessageRepo) MarkConversationSeen(ctx context.Context, senderID, receiverID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages {
		if msg.SenderID == senderID && msg.ReceiverID == receiverID && !msg.Seen {
			msg.Seen = true
			n++
		}
	}
	return n, nil
}

func (m *memMessageRepo) MarkMessageSeen(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == messageID {
			msg.Seen = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memMessageRepo) CountUnseen(ctx context.Context, senderID, receiverID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, msg := range m.messages {
		if msg.SenderID == senderID && msg.ReceiverID == receiverID && !msg.Seen {
			count++
		}
	}
	return count, nil
}

func (m *memMessageRepo) stored() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, *msg)
	}
	return out
}

type stubUserRepo struct {
	users map[string]domain.User
}

func (s *stubUserRepo) CreateUser(ctx context.Context, user *domain.User) error { return nil }
func (s *stubUserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}
func (s *stubUserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := s.users[id]; ok {
		return &u, nil
	}
	return nil, repository.ErrNotFound
}
func (s *stubUserRepo) ListUsersExcept(ctx context.Context, id string) ([]domain.User, error) {
	out := make([]domain.User, 0)
	for _, u := range s.users {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out, nil
}
func (s *stubUserRepo) UpdateUserProfile(ctx context.Context, user *domain.User) error { return nil }

type recordingPresence struct {
	mu      sync.Mutex
	online  map[string]bool
	failing bool
	emits   []ws.Envelope
}

func (p *recordingPresence) Emit(userID, event string, data any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] || p.failing {
		return false
	}
	p.emits = append(p.emits, ws.Envelope{Event: event, Data: data})
	return true
}

type stubUploader struct {
	url string
	err error
}

func (u stubUploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	return u.url, u.err
}

func testUsers(ids ...string) *stubUserRepo {
	repo := &stubUserRepo{users: make(map[string]domain.User)}
	for _, id := range ids {
		repo.users[id] = domain.User{ID: id, FullName: id, Email: id + "@example.com"}
	}
	return repo
}

func newTestService(store *memMessageRepo, users *stubUserRepo, presence Presence, uploader stubUploader) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, users, presence, uploader, log, 1<<20)
}

func dataURI(payload string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	store := &memMessageRepo{}
	svc := newTestService(store, testUsers("alice", "bob"), &recordingPresence{}, stubUploader{})

	_, err := svc.Send(context.Background(), "alice", "bob", SendInput{Text: "   "})
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Empty(t, store.stored(), "nothing may be persisted")
}

func TestSendUnknownReceiverIsNotFound(t *testing.T) {
	store := &memMessageRepo{}
	svc := newTestService(store, testUsers("alice"), &recordingPresence{}, stubUploader{})

	_, err := svc.Send(context.Background(), "alice", "ghost", SendInput{Text: "hi"})
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.Empty(t, store.stored())
}

func TestSendStoresUnseenWhenReceiverOffline(t *testing.T) {
	req := require.New(t)
	store := &memMessageRepo{}
	svc := newTestService(store, testUsers("alice", "bob"), &recordingPresence{}, stubUploader{})

	msg, err := svc.Send(context.Background(), "alice", "bob", SendInput{Text: "hi"})
	req.NoError(err, "offline receiver must not fail the send")
	req.NotEmpty(msg.ID)
	req.False(msg.Seen)
	req.Len(store.stored(), 1)
}

func TestSendPushesExactlyOnceWhenReceiverOnline(t *testing.T) {
	req := require.New(t)
	store := &memMessageRepo{}
	presence := &recordingPresence{online: map[string]bool{"bob": true}}
	svc := newTestService(store, testUsers("alice", "bob"), presence, stubUploader{})

	msg, err := svc.Send(context.Background(), "alice", "bob", SendInput{Text: "hi"})
	req.NoError(err)

	req.Len(presence.emits, 1)
	req.Equal(ws.EventNewMessage, presence.emits[0].Event)
	pushed, ok := presence.emits[0].Data.(*domain.Message)
	req.True(ok)
	req.Equal(msg.ID, pushed.ID, "push carries the persisted message")
}

func TestSendSucceedsWhenPushFails(t *testing.T) {
	store := &memMessageRepo{}
	presence := &recordingPresence{online: map[string]bool{"bob": true}, failing: true}
	svc := newTestService(store, testUsers("alice", "bob"), presence, stubUploader{})

	_, err := svc.Send(context.Background(), "alice", "bob", SendInput{Text: "hi"})
	require.NoError(t, err, "persistence already succeeded; push failure is swallowed")
	require.Len(t, store.stored(), 1)
}

func TestSendUploadFailureAbortsWithoutPersisting(t *testing.T) {
	store := &memMessageRepo{}
	svc := newTestService(store, testUsers("alice", "bob"), &recordingPresence{}, stubUploader{err: errors.New("bucket down")})

	_, err := svc.Send(context.Background(), "alice", "bob", SendInput{Image: dataURI("img")})
	require.Error(t, err)
	require.Empty(t, store.stored(), "no partial message with a dangling image")
}

func TestSendResolvesImageToDurableURL(t *testing.T) {
	req := require.New(t)
	store := &memMessageRepo{}
	svc := newTestService(store, testUsers("alice", "bob"), &recordingPresence{}, stubUploader{url: "https://cdn.example.com/chat/1.png"})

	msg, err := svc.Send(context.Background(), "alice", "bob", SendInput{Image: dataURI("img")})
	req.NoError(err)
	req.Equal("https://cdn.example.com/chat/1.png", msg.Image)
	req.Empty(msg.Text)
}

func TestConversationIsSymmetricAndMarksSeen(t *testing.T) {
	req := require.New(t)
	store := &memMessageRepo{}
	users := testUsers("alice", "bob")
	svc := newTestService(store, users, &recordingPresence{}, stubUploader{})

	_, err := svc.Send(context.Background(), "alice", "bob", SendInput{Text: "one"})
	req.NoError(err)
	_, err = svc.Send(context.Background(), "bob", "alice", SendInput{Text: "two"})
	req.NoError(err)

	fromAlice, err := svc.Conversation(context.Background(), "alice", "bob")
	req.NoError(err)
	fromBob, err := svc.Conversation(context.Background(), "bob", "alice")
	req.NoError(err)

	req.Len(fromAlice, 2)
	req.Len(fromBob, 2)
	req.Equal(fromAlice[0].ID, fromBob[0].ID, "both sides see the same ordered set")
	req.Equal(fromAlice[1].ID, fromBob[1].ID)

	// Both directions have been fetched by their receivers, so everything
	// is now seen; a re-fetch observes it and changes nothing.
	again, err := svc.Conversation(context.Background(), "alice", "bob")
	req.NoError(err)
	for _, m := range again {
		req.True(m.Seen)
	}
}

func TestContactsReportsOnlyPositiveUnseenCounts(t *testing.T) {
	req := require.New(t)
	store := &memMessageRepo{}
	users := testUsers("alice", "bob", "carol")
	svc := newTestService(store, users, &recordingPresence{}, stubUploader{})

	_, err := svc.Send(context.Background(), "bob", "alice", SendInput{Text: "hey"})
	req.NoError(err)
	_, err = svc.Send(context.Background(), "bob", "alice", SendInput{Text: "you there?"})
	req.NoError(err)

	contacts, unseen, err := svc.Contacts(context.Background(), "alice")
	req.NoError(err)
	req.Len(contacts, 2)
	req.Equal(map[string]int{"bob": 2}, unseen, "zero-count contacts are absent")
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	req := require.New(t)
	store := &memMessageRepo{}
	svc := newTestService(store, testUsers("alice", "bob"), &recordingPresence{}, stubUploader{})

	msg, err := svc.Send(context.Background(), "alice", "bob", SendInput{Text: "hi"})
	req.NoError(err)

	req.NoError(svc.MarkSeen(context.Background(), msg.ID))
	req.NoError(svc.MarkSeen(context.Background(), msg.ID), "second mark is a no-op, not an error")
	req.ErrorIs(svc.MarkSeen(context.Background(), "missing"), repository.ErrNotFound)
}

// Full walk through the offline-store, connect, read-marks-as-seen cycle.
func TestOfflineDeliveryScenario(t *testing.T) {
	req := require.New(t)
	store := &memMessageRepo{}
	users := testUsers("alice", "bob")
	registry := ws.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := newTestService(store, users, registry, stubUploader{})

	// Bob messages Alice while she is disconnected.
	sent, err := svc.Send(context.Background(), "bob", "alice", SendInput{Text: "hello"})
	req.NoError(err)
	req.False(sent.Seen)

	_, unseen, err := svc.Contacts(context.Background(), "alice")
	req.NoError(err)
	req.Equal(1, unseen["bob"])

	// Alice connects; the registry now counts her online.
	conn := &scenarioConn{}
	registry.Register("alice", conn)
	req.True(registry.IsOnline("alice"))
	req.Equal([]string{"alice"}, conn.lastOnline)

	// Fetching the conversation acknowledges Bob's message.
	msgs, err := svc.Conversation(context.Background(), "alice", "bob")
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal("hello", msgs[0].Text)
	req.False(msgs[0].Seen, "fetch returns pre-acknowledgment state")

	_, unseen, err = svc.Contacts(context.Background(), "alice")
	req.NoError(err)
	req.Empty(unseen)

	msgs, err = svc.Conversation(context.Background(), "alice", "bob")
	req.NoError(err)
	req.True(msgs[0].Seen)

	// While she is connected, new messages arrive in real time.
	pushed, err := svc.Send(context.Background(), "bob", "alice", SendInput{Text: "still there?"})
	req.NoError(err)
	req.Equal(pushed.ID, conn.lastMessage.ID)

	registry.Unregister("alice", conn)
	req.False(registry.IsOnline("alice"))
}

type scenarioConn struct {
	lastOnline  []string
	lastMessage *domain.Message
	lastSeen    time.Time
}

func (c *scenarioConn) Enqueue(event string, data any) error {
	switch event {
	case ws.EventOnlineUsers:
		c.lastOnline = data.([]string)
	case ws.EventNewMessage:
		c.lastMessage = data.(*domain.Message)
	}
	c.lastSeen = time.Now()
	return nil
}

func (c *scenarioConn) Close() {}
