package repository

import (
	"context"

	"github.com/AhinsaKavindi22/real-time-chat-application/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsersExcept(ctx context.Context, id string) ([]domain.User, error)
	UpdateUserProfile(ctx context.Context, user *domain.User) error
}

// MessageRepository persists direct messages and their read state.
type MessageRepository interface {
	CreateMessage(ctx context.Context, message *domain.Message) error
	// ListConversation returns messages in both directions between the two
	// users, ordered by creation time with insertion order as tie-break.
	ListConversation(ctx context.Context, userA, userB string) ([]domain.Message, error)
	// MarkConversationSeen flags every unseen message from sender to
	// receiver as seen and reports how many rows changed.
	MarkConversationSeen(ctx context.Context, senderID, receiverID string) (int64, error)
	MarkMessageSeen(ctx context.Context, messageID string) error
	CountUnseen(ctx context.Context, senderID, receiverID string) (int, error)
}
