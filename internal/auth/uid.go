package auth

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// EncodeUserID encodes a user id into an opaque URL-safe string suitable
// for use in password reset links. The encoding is reversible, it exists
// to keep the raw id out of casual sight, not to hide it.
func EncodeUserID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeUserID is the inverse of EncodeUserID. Any malformed input
// results in ErrInvalidUID, callers are expected to map that to
// ErrInvalidResetLink before it reaches a client.
func DecodeUserID(s string) (int64, error) {
	// Links may arrive with or without base64 padding.
	s = strings.TrimRight(s, "=")

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidUID, err)
	}

	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a decimal id", ErrInvalidUID)
	}

	if id <= 0 {
		return 0, fmt.Errorf("%w: non-positive id", ErrInvalidUID)
	}

	return id, nil
}
