package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// RoleUser is assigned to every self-registered account.
const RoleUser = "USER"

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrAccountDisabled is returned when an inactive user tries to log in.
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrUsernameRequired is returned when a request carries no username.
	ErrUsernameRequired = errors.New("username is required")
	// ErrPasswordRequired is returned when registration carries no password.
	ErrPasswordRequired = errors.New("password is required")
	// ErrPasswordTooLong is returned for passwords over MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// User is an account in the user store. Username never changes after
// registration.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	FullName     string
	Phone        string
	Address      string
	Role         string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

// Profile holds the mutable contact fields of a user.
type Profile struct {
	FullName string
	Email    string
	Phone    string
	Address  string
}

// Repository defines persistence operations for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	UpdateProfile(ctx context.Context, username string, p Profile, now time.Time) (*User, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}
