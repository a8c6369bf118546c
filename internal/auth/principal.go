package auth

import (
	"context"
	"log/slog"
	"sort"
)

// Scope codes that are always present, depending on whether a request
// carries an authenticated user.
const (
	ScopeAuthenticated   = "authenticated"
	ScopeUnauthenticated = "unauthenticated"
)

// Principal is the resolved identity attached to a request.
type Principal struct {
	// UserID is zero for unauthenticated principals.
	UserID int64
	Scopes []string
}

// Unauthenticated returns the principal for requests without a valid
// session subject.
func Unauthenticated() Principal {
	return Principal{
		Scopes: []string{ScopeUnauthenticated},
	}
}

// IsAuthenticated reports whether the principal belongs to a known user.
func (p Principal) IsAuthenticated() bool {
	return p.UserID != 0
}

// HasScope reports whether the principal holds the given scope code.
func (p Principal) HasScope(code string) bool {
	for _, s := range p.Scopes {
		if s == code {
			return true
		}
	}

	return false
}

// Resolver resolves session subjects into principals.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// Resolve looks up the user behind a session subject. It never fails:
// a zero id, an unknown or inactive user, or a storage error all degrade
// to the unauthenticated principal. Errors are logged, not returned,
// authentication failures should never take down a request.
//
// An authenticated principal holds the "authenticated" scope plus the
// user's own scope codes, sorted.
func (r *Resolver) Resolve(ctx context.Context, userID int64) Principal {
	if userID == 0 {
		return Unauthenticated()
	}

	var (
		user  User
		codes []string
	)

	err := r.inTx(ctx, func(tx Tx) error {
		users, err := tx.FindUsers(&UserFilter{
			IDs:      []int64{userID},
			IsActive: ptr(true),
		})
		if err != nil {
			return err
		}

		if len(users) != 1 {
			return nil
		}

		user = users[0]

		codes, err = tx.UserScopeCodes(user.ID)
		return err
	})
	if err != nil {
		r.logger.Error("failed to resolve principal", "user_id", userID, "error", err)
		return Unauthenticated()
	}

	if user.ID == 0 {
		return Unauthenticated()
	}

	scopes := append([]string{ScopeAuthenticated}, codes...)
	sort.Strings(scopes[1:])

	return Principal{
		UserID: user.ID,
		Scopes: scopes,
	}
}

func (r *Resolver) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
