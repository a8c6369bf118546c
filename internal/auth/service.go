// Package auth implements credential verification and the password
// reset flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/internal/errorz"
	"github.com/dstam/groundwork/internal/krypto"
)

// resetEmailView is the email template rendered for password reset requests.
const resetEmailView = "password-reset"

// Emailer is used to send templated emails.
type Emailer interface {
	SendMessage(ctx context.Context, name string, to email.Address, data any) error
}

// ErrFunc is a function that handles errors.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take before they are cancelled.
	WorkerTimeout time.Duration
	// TokenTimeout is the duration a password reset token remains valid.
	// Note that expiry is bucketed to whole days, see ResetTokenGenerator.
	TokenTimeout time.Duration
	// BaseURL is the public base URL of the application, used to
	// construct the links in emails.
	BaseURL string
}

// ResetLink are the components of a password reset link as they are
// rendered into the email.
type ResetLink struct {
	UID   string
	Token string
	URL   string
}

// ResetRequest is a request to set a new password via a reset link.
type ResetRequest struct {
	UID      string
	Token    string
	Password Password
}

// Service provides the main rules for authentication: login
// verification, password changes and the password reset flow.
type Service struct {
	store      Store
	emailer    Emailer
	tokens     *ResetTokenGenerator
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, emailer Emailer, secret krypto.Secret, errHandler ErrFunc, cfg ServiceConfig) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(tok[:])
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		emailer:        emailer,
		tokens:         NewResetTokenGenerator(secret, cfg.TokenTimeout),
		wg:             &sync.WaitGroup{},
		errHandler:     errHandler,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// TokenGenerator returns the generator used to sign reset tokens.
func (s *Service) TokenGenerator() *ResetTokenGenerator {
	return s.tokens
}

// Authenticate checks the provided credentials and records the login
// time. All failures result in ErrInvalidCredentials, the caller cannot
// tell an unknown email from a wrong password.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (User, error) {
	var user User

	err := s.inTx(ctx, func(tx Tx) error {
		users, err := tx.FindUsers(&UserFilter{
			Emails:   []email.Address{c.Email},
			IsActive: ptr(true),
		})
		if err != nil {
			return err
		}

		if len(users) != 1 {
			// Even if no user is found we compare to a hash to prevent
			// timing differences that could result in user enumeration
			// attacks.
			_ = c.Password.Match(s.comparisonHash)
			return ErrInvalidCredentials
		}

		if !c.Password.Match(users[0].PasswordHash) {
			return ErrInvalidCredentials
		}

		// Store whole seconds, reset tokens derived from this user must
		// survive a round-trip through the database.
		now := s.NowFunc().UTC().Truncate(time.Second)
		users[0].LastLogin = &now
		users[0].UpdatedAt = now

		if err := tx.UpdateUser(&users[0]); err != nil {
			return err
		}

		user = users[0]
		return nil
	})
	if err != nil {
		return User{}, err
	}

	return user, nil
}

// ChangePassword sets a new password for the user after verifying their
// current one. A mismatch fails with ErrCurrentPassword and leaves the
// user untouched.
//
// A successful change also invalidates all outstanding reset tokens for
// the user, those are bound to the old password hash.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, newPwd Password) error {
	return s.inTx(ctx, func(tx Tx) error {
		users, err := tx.FindUsers(&UserFilter{
			IDs:      []int64{userID},
			IsActive: ptr(true),
		})
		if err != nil {
			return err
		}

		if len(users) != 1 {
			return fmt.Errorf("user %d: %w", userID, errorz.ErrNotFound)
		}

		if !current.Match(users[0].PasswordHash) {
			return ErrCurrentPassword
		}

		hash, err := newPwd.Hash()
		if err != nil {
			return err
		}

		users[0].PasswordHash = hash
		users[0].UpdatedAt = s.NowFunc().UTC().Truncate(time.Second)

		return tx.UpdateUser(&users[0])
	})
}

// RequestPasswordReset requests a password reset for the given email
// address. The main work is done in a separate goroutine and no output
// is returned that indicates whether the email matched a user.
func (s *Service) RequestPasswordReset(_ context.Context, addr email.Address) {
	// The actual work is done in a separate goroutine to prevent:
	// - Waiting for the email to be send might slow down sending a response.
	// - Information leakage. Timing difference between existing/non-existing
	//   user could lead to user enumeration attacks.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.startPasswordReset(wCtx, addr)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()
}

func (s *Service) startPasswordReset(ctx context.Context, addr email.Address) error {
	var user User
	found := false

	err := s.inTx(ctx, func(tx Tx) error {
		users, err := tx.FindUsers(&UserFilter{
			Emails:   []email.Address{addr},
			IsActive: ptr(true),
		})
		if err != nil {
			return err
		}

		if len(users) == 1 {
			user = users[0]
			found = true
		}

		return nil
	})
	if err != nil {
		return err
	}

	// Unknown emails are a quiet no-op, there is nobody to notify.
	if !found {
		return nil
	}

	link := ResetLink{
		UID:   EncodeUserID(user.ID),
		Token: s.tokens.MakeToken(user),
	}
	link.URL = fmt.Sprintf("%s/reset-password/%s/%s", strings.TrimSuffix(s.cfg.BaseURL, "/"), link.UID, link.Token)

	// Sending could fail independently of the lookup. Acceptable risk,
	// the user can always request another reset email.
	return s.emailer.SendMessage(ctx, resetEmailView, user.Email, link)
}

// VerifyResetLink checks a reset link and returns the matching user.
// It does not mutate any state: both rendering the confirmation form and
// submitting it call this, a link must not be consumed by a GET.
func (s *Service) VerifyResetLink(ctx context.Context, uid, token string) (User, error) {
	var user User

	err := s.inTx(ctx, func(tx Tx) error {
		u, err := s.verifyInTx(tx, uid, token)
		if err != nil {
			return err
		}

		user = u
		return nil
	})
	if err != nil {
		return User{}, err
	}

	return user, nil
}

// ResetPassword sets a new password via a reset link. The link is
// re-verified inside the same transaction that persists the new hash.
// Afterwards the same link no longer verifies, the password hash it was
// bound to has changed.
func (s *Service) ResetPassword(ctx context.Context, req ResetRequest) error {
	return s.inTx(ctx, func(tx Tx) error {
		user, err := s.verifyInTx(tx, req.UID, req.Token)
		if err != nil {
			return err
		}

		hash, err := req.Password.Hash()
		if err != nil {
			return err
		}

		user.PasswordHash = hash
		user.UpdatedAt = s.NowFunc().UTC().Truncate(time.Second)

		return tx.UpdateUser(&user)
	})
}

func (s *Service) verifyInTx(tx Tx, uid, token string) (User, error) {
	id, err := DecodeUserID(uid)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidResetLink, err)
	}

	users, err := tx.FindUsers(&UserFilter{
		IDs:      []int64{id},
		IsActive: ptr(true),
	})
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		return User{}, ErrInvalidResetLink
	}

	if !s.tokens.CheckToken(&users[0], token) {
		return User{}, ErrInvalidResetLink
	}

	return users[0], nil
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	return nil
}

func ptr[T any](v T) *T {
	return &v
}
