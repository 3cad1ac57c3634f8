package identity

import (
	"errors"
	"time"
)

// Identity is the authenticated principal bound to a live connection.
// It is resolved once at authentication time and never changes for the
// lifetime of the connection.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// User represents a stored user account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity returns the identity view of a user account.
func (u *User) Identity() Identity {
	return Identity{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
	}
}

// Sentinel errors for authentication and account operations.
var (
	// ErrCredentialMissing indicates the handshake carried no bearer credential.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrCredentialInvalid indicates the credential failed signature or expiry checks.
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrSubjectNotFound indicates the credential subject has no account in the store.
	ErrSubjectNotFound = errors.New("credential subject not found")

	ErrInvalidLogin = errors.New("invalid email or password")
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already registered")
)
