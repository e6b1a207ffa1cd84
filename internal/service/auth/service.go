package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AhinsaKavindi22/real-time-chat-application/internal/domain"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/media"
	"github.com/AhinsaKavindi22/real-time-chat-application/internal/repository"
	"github.com/AhinsaKavindi22/real-time-chat-application/pkg/config"
	"github.com/AhinsaKavindi22/real-time-chat-application/pkg/crypto"
	jwtpkg "github.com/AhinsaKavindi22/real-time-chat-application/pkg/jwt"
)

const minPasswordLength = 6

var (
	// ErrMissingFields indicates a signup without name, email or password.
	ErrMissingFields = errors.New("full name, email and password are required")
	// ErrPasswordTooShort indicates a password below the minimum length.
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service handles account workflows: signup, login, token authorization
// and profile updates.
type Service struct {
	users    repository.UserRepository
	uploader media.Uploader
	logger   *slog.Logger
	cfg      config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, uploader media.Uploader, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, uploader: uploader, logger: logger, cfg: cfg}
}

// SignupInput carries new-account fields. Bio is optional.
type SignupInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// Signup registers a new user and returns it with a signed token.
func (s Service) Signup(ctx context.Context, in SignupInput) (*domain.User, string, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if fullName == "" || email == "" || in.Password == "" {
		return nil, "", ErrMissingFields
	}
	if len(in.Password) < minPasswordLength {
		return nil, "", ErrPasswordTooShort
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Bio:          strings.TrimSpace(in.Bio),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}
	token, err := jwtpkg.GenerateToken(user.ID, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login authenticates a user and returns it with a fresh token. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := jwtpkg.GenerateToken(user.ID, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Authorize validates a bearer token and resolves it to its user.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByID(ctx, claims.UserID)
}

// UpdateProfileInput carries mutable profile fields. ProfilePic, when set,
// is a base64 data URI that is uploaded before the profile is persisted.
type UpdateProfileInput struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// UpdateProfile applies profile changes for the user and returns the
// updated record. An avatar upload failure aborts the whole update.
func (s Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.ProfilePic != "" {
		data, contentType, err := media.DecodeDataURI(in.ProfilePic, s.cfg.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		url, err := s.uploader.Upload(ctx, data, contentType)
		if err != nil {
			return nil, err
		}
		user.ProfilePic = url
	}
	if fullName := strings.TrimSpace(in.FullName); fullName != "" {
		user.FullName = fullName
	}
	user.Bio = strings.TrimSpace(in.Bio)
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUserProfile(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", "user_id", user.ID)
	return user, nil
}
