package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AhinsaKavindi22/real-time-chat-application/internal/domain"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.MessageRepository = (*Repository)(nil)
)

const uniqueViolation = "23505"

// CreateUser inserts a user. Duplicate emails map to ErrEmailTaken.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, full_name, password_hash, profile_pic, bio, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.FullName, user.PasswordHash, user.ProfilePic, user.Bio, user.CreatedAt, user.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrEmailTaken
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, full_name, password_hash, profile_pic, bio, created_at, updated_at
		FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, full_name, password_hash, profile_pic, bio, created_at, updated_at
		FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// ListUsersExcept returns every user other than the given one.
func (r *Repository) ListUsersExcept(ctx context.Context, id string) ([]domain.User, error) {
	const query = `SELECT id, email, full_name, password_hash, profile_pic, bio, created_at, updated_at
		FROM users WHERE id <> $1 ORDER BY full_name, id`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.ProfilePic, &u.Bio, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserProfile persists mutable profile fields.
func (r *Repository) UpdateUserProfile(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET full_name = $2, bio = $3, profile_pic = $4, updated_at = $5 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, user.ID, user.FullName, user.Bio, user.ProfilePic, user.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateMessage inserts a message and backfills its storage sequence.
func (r *Repository) CreateMessage(ctx context.Context, message *domain.Message) error {
	const query = `INSERT INTO messages (id, sender_id, receiver_id, text, image, seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`
	row := r.pool.QueryRow(ctx, query, message.ID, message.SenderID, message.ReceiverID, message.Text, message.Image, message.Seen, message.CreatedAt, message.UpdatedAt)
	return row.Scan(&message.Seq)
}

// ListConversation returns messages in both directions between two users.
func (r *Repository) ListConversation(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	const query = `SELECT id, seq, sender_id, receiver_id, text, image, seen, created_at, updated_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at, seq`
	rows, err := r.pool.Query(ctx, query, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Seq, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.Seen, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkConversationSeen flags unseen messages from sender to receiver as seen.
func (r *Repository) MarkConversationSeen(ctx context.Context, senderID, receiverID string) (int64, error) {
	const query = `UPDATE messages SET seen = TRUE, updated_at = NOW()
		WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen`
	tag, err := r.pool.Exec(ctx, query, senderID, receiverID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkMessageSeen sets the seen flag on a single message.
func (r *Repository) MarkMessageSeen(ctx context.Context, messageID string) error {
	const query = `UPDATE messages SET seen = TRUE, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountUnseen counts unseen messages from sender to receiver.
func (r *Repository) CountUnseen(ctx context.Context, senderID, receiverID string) (int, error) {
	const query = `SELECT COUNT(1) FROM messages WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen`
	var count int
	if err := r.pool.QueryRow(ctx, query, senderID, receiverID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.ProfilePic, &u.Bio, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
