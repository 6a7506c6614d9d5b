package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Username string
	Password string
	Email    string
	FullName string
	Phone    string
	Address  string
}

// Session is returned by Register and Login.
type Session struct {
	User  *User
	Token string
}

// Service implements the user store operations.
type Service struct {
	repo      Repository
	passwords PasswordPolicy
	now       func() time.Time
}

// NewService creates a user Service.
func NewService(repo Repository, passwords PasswordPolicy) *Service {
	return &Service{
		repo:      repo,
		passwords: passwords,
		now:       time.Now,
	}
}

// FindByUsername returns the user with the given username or ErrNotFound.
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// FindByID returns the user with the given id or ErrNotFound.
func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// CheckPermission reports whether username may place orders: the user must
// exist, have a non-empty username and be active.
func (s *Service) CheckPermission(ctx context.Context, username string) (bool, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "check permission of %q", username)
	}
	return u.Username != "" && u.Active, nil
}

// Register creates an active USER account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if req.Password == "" {
		return nil, ErrPasswordRequired
	}
	if len(req.Password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	switch _, err := s.repo.GetByUsername(ctx, username); {
	case err == nil:
		return nil, ErrUsernameTaken
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "lookup username")
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &User{
		Username:     username,
		PasswordHash: hash,
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Address:      req.Address,
		Role:         RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	zctx.From(ctx).Info("User registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return &Session{User: u, Token: uuid.NewString()}, nil
}

// Login verifies credentials, records the login time and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "lookup user")
	}

	ok, legacy := s.passwords.Verify(u.PasswordHash, password)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if legacy {
		zctx.From(ctx).Warn("Plaintext password accepted, rehash required",
			zap.String("username", u.Username),
		)
	}
	if !u.Active {
		return nil, ErrAccountDisabled
	}

	now := s.now().UTC()
	if err := s.repo.TouchLogin(ctx, u.ID, now); err != nil {
		return nil, errors.Wrap(err, "record login")
	}
	u.LastLogin = &now

	return &Session{User: u, Token: uuid.NewString()}, nil
}

// UpdateProfile replaces the contact fields of an existing user.
func (s *Service) UpdateProfile(ctx context.Context, username string, p Profile) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrUsernameRequired
	}
	u, err := s.repo.UpdateProfile(ctx, username, p, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "update profile of %q", username)
	}
	return u, nil
}
