package auth

import "errors"

var (
	// ErrInvalidCredentials indicates a login attempt failed. It deliberately
	// does not distinguish between unknown emails and wrong passwords, doing
	// so would allow user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrCurrentPassword indicates the provided current password did not
	// match. Only used for password changes, at that point the caller is
	// already authenticated so this is safe to reveal.
	ErrCurrentPassword = errors.New("current password incorrect")

	// ErrInvalidResetLink indicates a password reset link could not be
	// verified. Bad encodings, unknown or inactive users, forged signatures,
	// expired and replayed tokens all collapse into this single error.
	ErrInvalidResetLink = errors.New("invalid password reset link")

	// ErrInvalidUID indicates a user id could not be decoded. Callers map
	// this to ErrInvalidResetLink before it ever reaches a client.
	ErrInvalidUID = errors.New("invalid user id encoding")
)
