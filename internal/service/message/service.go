package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AhinsaKavindi22/real-time-chat-application/internal/domain"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/media"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/repository"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/ws"
)

// ErrEmptyMessage indicates a send with neither text nor image.
var ErrEmptyMessage = errors.New("message requires text or an image")

// Presence is the registry surface the service pushes through.
type Presence interface {
	Emit(userID, event string, data any) bool
}

// Service orchestrates message persistence, best-effort real-time
// delivery, and read-state tracking.
type Service struct {
	messages      repository.MessageRepository
	users         repository.UserRepository
	presence      Presence
	uploader      media.Uploader
	logger        *slog.Logger
	maxImageBytes int64
}

// New constructs a Service.
func New(messages repository.MessageRepository, users repository.UserRepository, presence Presence, uploader media.Uploader, logger *slog.Logger, maxImageBytes int64) Service {
	return Service{
		messages:      messages,
		users:         users,
		presence:      presence,
		uploader:      uploader,
		logger:        logger,
		maxImageBytes: maxImageBytes,
	}
}

// SendInput carries the message payload. Image, when set, is a base64
// data URI uploaded to durable storage before the message is persisted.
type SendInput struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Send persists a message and, when the receiver is connected, pushes it
// over their delivery channel. Persistence decides success: a failed or
// missed push never fails the operation.
func (s Service) Send(ctx context.Context, senderID, receiverID string, in SendInput) (*domain.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Image == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.users.GetUserByID(ctx, receiverID); err != nil {
		return nil, fmt.Errorf("resolve receiver: %w", err)
	}

	var imageURL string
	if in.Image != "" {
		data, contentType, err := media.DecodeDataURI(in.Image, s.maxImageBytes)
		if err != nil {
			return nil, err
		}
		imageURL, err = s.uploader.Upload(ctx, data, contentType)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
		Seen:       false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Best-effort push: the message is durable already, so an offline
	// receiver or a dropped connection only means they will see it on
	// their next conversation fetch.
	if !s.presence.Emit(receiverID, ws.EventNewMessage, msg) {
		s.logger.Debug("receiver offline, message stored only", "message_id", msg.ID, "receiver_id", receiverID)
	}
	return msg, nil
}

// Conversation returns all messages between the caller and the other user,
// oldest first, and marks the other user's messages to the caller as seen.
// Fetching is itself the acknowledgment; re-fetching changes nothing.
func (s Service) Conversation(ctx context.Context, selfID, otherID string) ([]domain.Message, error) {
	if _, err := s.users.GetUserByID(ctx, otherID); err != nil {
		return nil, fmt.Errorf("resolve contact: %w", err)
	}
	msgs, err := s.messages.ListConversation(ctx, selfID, otherID)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkConversationSeen(ctx, otherID, selfID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Contacts returns every other user plus, for those with any, the count of
// their unseen messages to the caller. Counts are independent, so they are
// gathered concurrently, one query per contact.
func (s Service) Contacts(ctx context.Context, selfID string) ([]domain.User, map[string]int, error) {
	users, err := s.users.ListUsersExcept(ctx, selfID)
	if err != nil {
		return nil, nil, err
	}

	unseen := make(map[string]int)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, contact := range users {
		g.Go(func() error {
			count, err := s.messages.CountUnseen(gctx, contact.ID, selfID)
			if err != nil {
				return err
			}
			if count > 0 {
				mu.Lock()
				unseen[contact.ID] = count
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return users, unseen, nil
}

// MarkSeen flags a single message as seen, independent of any fetch.
// Marking an already-seen message succeeds without change.
func (s Service) MarkSeen(ctx context.Context, messageID string) error {
	return s.messages.MarkMessageSeen(ctx, messageID)
}
