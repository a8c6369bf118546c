package db

import (
	"database/sql"
	"fmt"

	"github.com/dstam/groundwork/internal/auth"
	"github.com/dstam/groundwork/internal/db"
	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/internal/errorz"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)

func insertUser(ef execFunc, u *auth.User) error {
	var q db.Query

	q.Unsafe(`INSERT INTO users (email, password_hash, is_active, last_login, created_at, updated_at) VALUES (`)
	q.Params(string(u.Email), u.PasswordHash.String(), u.IsActive, u.LastLogin, u.CreatedAt, u.UpdatedAt)
	q.Unsafe(`)`)

	s, params := q.Get()

	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	u.ID = id

	return nil
}

func updateUser(ef execFunc, u *auth.User) error {
	var q db.Query

	q.Unsafe(`UPDATE users SET `)

	q.Unsafe(`email = `)
	q.Param(string(u.Email))

	q.Unsafe(`, password_hash = `)
	q.Param(u.PasswordHash.String())

	q.Unsafe(`, is_active = `)
	q.Param(u.IsActive)

	q.Unsafe(`, last_login = `)
	q.Param(u.LastLogin)

	q.Unsafe(`, created_at = `)
	q.Param(u.CreatedAt)

	q.Unsafe(`, updated_at = `)
	q.Param(u.UpdatedAt)

	q.Unsafe(` WHERE id = `)
	q.Param(u.ID)

	s, params := q.Get()

	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("user not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func selectUsers(qf queryFunc, f *auth.UserFilter) ([]auth.User, error) {
	var q db.Query

	q.Unsafe(`SELECT id, email, password_hash, is_active, last_login, created_at, updated_at FROM users WHERE 1=1 `)

	if len(f.IDs) > 0 {
		q.Unsafe(`AND id IN (`)
		q.Params(anySlice(f.IDs)...)
		q.Unsafe(`) `)
	}

	if len(f.Emails) > 0 {
		q.Unsafe(`AND email IN (`)
		q.Params(anySlice(f.Emails)...)
		q.Unsafe(`) `)
	}

	if f.IsActive != nil {
		q.Unsafe(`AND is_active = `)
		q.Param(*f.IsActive)
	}

	q.Unsafe(` ORDER BY id ASC`)

	s, params := q.Get()

	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.User, 0)
	for rows.Next() {
		var (
			u         auth.User
			addr      string
			lastLogin sql.NullTime
		)

		err := rows.Scan(&u.ID, &addr, &u.PasswordHash, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		u.Email, err = email.ParseAddress(addr)
		if err != nil {
			return nil, err
		}

		if lastLogin.Valid {
			t := lastLogin.Time
			u.LastLogin = &t
		}

		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func insertScope(ef execFunc, sc *auth.Scope) error {
	var q db.Query

	q.Unsafe(`INSERT INTO scopes (code, description) VALUES (`)
	q.Params(sc.Code, sc.Description)
	q.Unsafe(`)`)

	s, params := q.Get()

	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	sc.ID = id

	return nil
}

func deleteScope(ef execFunc, code string) error {
	var q db.Query

	q.Unsafe(`DELETE FROM scopes WHERE code = `)
	q.Param(code)

	s, params := q.Get()

	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("scope not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func selectScopes(qf queryFunc, f *auth.ScopeFilter) ([]auth.Scope, error) {
	var q db.Query

	q.Unsafe(`SELECT id, code, COALESCE(description, '') FROM scopes WHERE 1=1 `)

	if len(f.Codes) > 0 {
		q.Unsafe(`AND code IN (`)
		q.Params(anySlice(f.Codes)...)
		q.Unsafe(`) `)
	}

	q.Unsafe(` ORDER BY code ASC`)

	s, params := q.Get()

	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.Scope, 0)
	for rows.Next() {
		var sc auth.Scope
		if err := rows.Scan(&sc.ID, &sc.Code, &sc.Description); err != nil {
			return nil, errorz.MapDBErr(err)
		}

		out = append(out, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func grantScope(ef execFunc, userID int64, code string) error {
	var q db.Query

	q.Unsafe(`INSERT INTO user_scopes (user_id, scope_id) SELECT `)
	q.Param(userID)
	q.Unsafe(`, id FROM scopes WHERE code = `)
	q.Param(code)

	s, params := q.Get()

	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("scope %q not found: %w", code, errorz.ErrNotFound)
	}

	return nil
}

func revokeScope(ef execFunc, userID int64, code string) error {
	var q db.Query

	q.Unsafe(`DELETE FROM user_scopes WHERE user_id = `)
	q.Param(userID)
	q.Unsafe(` AND scope_id IN (SELECT id FROM scopes WHERE code = `)
	q.Param(code)
	q.Unsafe(`)`)

	s, params := q.Get()

	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("user %d does not hold scope %q: %w", userID, code, errorz.ErrNotFound)
	}

	return nil
}

func selectUserScopeCodes(qf queryFunc, userID int64) ([]string, error) {
	var q db.Query

	q.Unsafe(`SELECT s.code FROM scopes s JOIN user_scopes us ON us.scope_id = s.id WHERE us.user_id = `)
	q.Param(userID)
	q.Unsafe(` ORDER BY s.code ASC`)

	s, params := q.Get()

	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, errorz.MapDBErr(err)
		}

		out = append(out, code)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func anySlice[T any](s []T) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
