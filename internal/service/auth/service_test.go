package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AhinsaKavindi22/real-time-chat-application/internal/domain"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/repository"
	"github.com/AhinsaKavindi22/real-time-chat-application/pkg/config"
)

type memUserRepo struct {
	byID    map[string]domain.User
	byEmail map[string]string
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[string]domain.User), byEmail: make(map[string]string)}
}

func (m *memUserRepo) CreateUser(ctx context.Context, user *domain.User) error {
	if _, taken := m.byEmail[user.Email]; taken {
		return repository.ErrEmailTaken
	}
	m.byID[user.ID] = *user
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *memUserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if id, ok := m.byEmail[email]; ok {
		u := m.byID[id]
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := m.byID[id]; ok {
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepo) ListUsersExcept(ctx context.Context, id string) ([]domain.User, error) {
	out := make([]domain.User, 0)
	for _, u := range m.byID {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUserRepo) UpdateUserProfile(ctx context.Context, user *domain.User) error {
	if _, ok := m.byID[user.ID]; !ok {
		return repository.ErrNotFound
	}
	m.byID[user.ID] = *user
	return nil
}

type stubUploader struct {
	url string
	err error
}

func (u stubUploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	return u.url, u.err
}

func newTestService(users *memUserRepo, uploader stubUploader) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour, MaxImageBytes: 1 << 20}
	return New(users, uploader, log, cfg)
}

func TestSignupIssuesUsableToken(t *testing.T) {
	req := require.New(t)
	users := newMemUserRepo()
	svc := newTestService(users, stubUploader{})

	user, token, err := svc.Signup(context.Background(), SignupInput{
		FullName: "Alice Adams",
		Email:    "Alice@Example.com",
		Password: "hunter22",
		Bio:      "hi there",
	})
	req.NoError(err)
	req.NotEmpty(user.ID)
	req.Equal("alice@example.com", user.Email, "email is normalized")
	req.NotEqual("hunter22", string(user.PasswordHash))

	authed, err := svc.Authorize(context.Background(), token)
	req.NoError(err)
	req.Equal(user.ID, authed.ID)
}

func TestSignupValidation(t *testing.T) {
	svc := newTestService(newMemUserRepo(), stubUploader{})

	_, _, err := svc.Signup(context.Background(), SignupInput{Email: "a@b.c", Password: "longenough"})
	require.ErrorIs(t, err, ErrMissingFields)

	_, _, err = svc.Signup(context.Background(), SignupInput{FullName: "A", Email: "a@b.c", Password: "short"})
	require.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	svc := newTestService(newMemUserRepo(), stubUploader{})
	in := SignupInput{FullName: "Alice", Email: "alice@example.com", Password: "hunter22"}

	_, _, err := svc.Signup(context.Background(), in)
	require.NoError(t, err)

	_, _, err = svc.Signup(context.Background(), in)
	require.ErrorIs(t, err, repository.ErrEmailTaken)
}

func TestLoginDoesNotDistinguishUnknownEmailFromWrongPassword(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newMemUserRepo(), stubUploader{})

	_, _, err := svc.Signup(context.Background(), SignupInput{FullName: "Alice", Email: "alice@example.com", Password: "hunter22"})
	req.NoError(err)

	_, _, err = svc.Login(context.Background(), "alice@example.com", "wrong-password")
	req.ErrorIs(err, ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "nobody@example.com", "hunter22")
	req.ErrorIs(err, ErrInvalidCredentials)

	user, token, err := svc.Login(context.Background(), "alice@example.com", "hunter22")
	req.NoError(err)
	req.NotEmpty(token)
	req.Equal("alice@example.com", user.Email)
}

func TestAuthorizeRejectsGarbageToken(t *testing.T) {
	svc := newTestService(newMemUserRepo(), stubUploader{})
	_, err := svc.Authorize(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestUpdateProfileUploadsAvatarFirst(t *testing.T) {
	req := require.New(t)
	users := newMemUserRepo()
	svc := newTestService(users, stubUploader{url: "https://cdn.example.com/chat/avatar.png"})

	user, _, err := svc.Signup(context.Background(), SignupInput{FullName: "Alice", Email: "alice@example.com", Password: "hunter22"})
	req.NoError(err)

	pic := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("avatar"))
	updated, err := svc.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{
		FullName:   "Alice A.",
		Bio:        "new bio",
		ProfilePic: pic,
	})
	req.NoError(err)
	req.Equal("https://cdn.example.com/chat/avatar.png", updated.ProfilePic)
	req.Equal("Alice A.", updated.FullName)
	req.Equal("new bio", updated.Bio)

	stored, err := users.GetUserByID(context.Background(), user.ID)
	req.NoError(err)
	req.Equal(updated.ProfilePic, stored.ProfilePic)
}

func TestUpdateProfileAbortsWhenUploadFails(t *testing.T) {
	req := require.New(t)
	users := newMemUserRepo()
	svc := newTestService(users, stubUploader{err: errors.New("bucket down")})

	user, _, err := svc.Signup(context.Background(), SignupInput{FullName: "Alice", Email: "alice@example.com", Password: "hunter22"})
	req.NoError(err)

	pic := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("avatar"))
	_, err = svc.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{ProfilePic: pic})
	req.Error(err)

	stored, err := users.GetUserByID(context.Background(), user.ID)
	req.NoError(err)
	req.Empty(stored.ProfilePic, "failed upload must leave the profile untouched")
}
