package krypto

import (
	"encoding/hex"
	"log/slog"
)

const (
	tokenLen = 32
)

// Token is a random byte string. It is confidential and should never be
// exposed in logs or persisted in plaintext.
type Token [tokenLen]byte

// GenerateToken creates a new random token.
func GenerateToken() (Token, error) {
	b, err := genRandomBytes(tokenLen)
	if err != nil {
		return [tokenLen]byte{}, err
	}
	return [tokenLen]byte(b), nil
}

// String returns the string representation of the token.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// LogValue implements the slog.Valuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}
