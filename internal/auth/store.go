package auth

import (
	"context"

	"github.com/dstam/groundwork/internal/email"
)

// UserFilter is used to filter users.
// Returned users must match all the provided fields.
// If a field is empty or nil, it's ignored.
type UserFilter struct {
	IDs      []int64
	Emails   []email.Address
	IsActive *bool
}

// ScopeFilter is used to filter scopes.
// Returned scopes must match all the provided fields.
// If a field is empty or nil, it's ignored.
type ScopeFilter struct {
	Codes []string
}

// Store provides access to the user store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	CreateUser(u *User) error
	UpdateUser(u *User) error
	FindUsers(filter *UserFilter) ([]User, error)

	CreateScope(s *Scope) error
	DeleteScope(code string) error
	FindScopes(filter *ScopeFilter) ([]Scope, error)

	GrantScope(userID int64, code string) error
	RevokeScope(userID int64, code string) error
	UserScopeCodes(userID int64) ([]string, error)
}
