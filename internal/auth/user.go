package auth

import (
	"time"

	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/internal/krypto"
)

// User contains the data for a user.
type User struct {
	ID           int64
	Email        email.Address
	PasswordHash krypto.Argon2Hash
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Scope is a capability that can be granted to users. Scopes are
// reference data, they are created and deleted independently of users.
type Scope struct {
	ID          int64
	Code        string
	Description string
}

// Credentials combine an email address and plaintext password.
type Credentials struct {
	Email    email.Address
	Password Password
}
