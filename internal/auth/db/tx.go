package db

import (
	"database/sql"

	"github.com/dstam/groundwork/internal/auth"
)

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// CreateUser creates a user in the database.
// It updates the users ID field when successful.
func (t *Tx) CreateUser(u *auth.User) error {
	return insertUser(t.tx.Exec, u)
}

// UpdateUser updates a user in the database.
// It returns errorz.ErrNotFound if no user is found.
func (t *Tx) UpdateUser(u *auth.User) error {
	return updateUser(t.tx.Exec, u)
}

// FindUsers queries for users based on the provided filter.
// It returns an empty slice if no users are found.
func (t *Tx) FindUsers(filter *auth.UserFilter) ([]auth.User, error) {
	return selectUsers(t.tx.Query, filter)
}

// CreateScope creates a scope in the database.
// It updates the scopes ID field when successful.
func (t *Tx) CreateScope(s *auth.Scope) error {
	return insertScope(t.tx.Exec, s)
}

// DeleteScope deletes the scope with the given code.
// It returns errorz.ErrNotFound if no scope is found.
func (t *Tx) DeleteScope(code string) error {
	return deleteScope(t.tx.Exec, code)
}

// FindScopes queries for scopes based on the provided filter.
// It returns an empty slice if no scopes are found.
func (t *Tx) FindScopes(filter *auth.ScopeFilter) ([]auth.Scope, error) {
	return selectScopes(t.tx.Query, filter)
}

// GrantScope grants the scope with the given code to a user.
// It returns errorz.ErrNotFound if the scope does not exist and
// errorz.ErrConstraintViolated if the user does not exist or already
// holds the scope.
func (t *Tx) GrantScope(userID int64, code string) error {
	return grantScope(t.tx.Exec, userID, code)
}

// RevokeScope revokes the scope with the given code from a user.
// It returns errorz.ErrNotFound if the user does not hold the scope.
func (t *Tx) RevokeScope(userID int64, code string) error {
	return revokeScope(t.tx.Exec, userID, code)
}

// UserScopeCodes returns the scope codes held by a user.
func (t *Tx) UserScopeCodes(userID int64) ([]string, error) {
	return selectUserScopeCodes(t.tx.Query, userID)
}
