package krypto

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Default argon2id parameters used when hashing new values.
// Changing these does not invalidate existing hashes, the parameters
// are stored alongside the salt and digest.
const (
	argonVariant     = "argon2id"
	argonMemoryKiB   = 47104
	argonIterations  = 1
	argonParallelism = 1

	saltLen = 16
	hashLen = 32
)

// ErrInvalidInput indicates a value could not be hashed or parsed.
var ErrInvalidInput = errors.New("invalid input")

// Argon2Hash is a parsed argon2 hash. It contains all parameters
// needed to re-derive the digest from a candidate value.
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes raw using argon2id with a random salt.
// Two calls with the same input produce different hashes.
func HashArgon2(raw []byte) (Argon2Hash, error) {
	if len(raw) == 0 {
		return Argon2Hash{}, fmt.Errorf("refusing to hash empty input: %w", ErrInvalidInput)
	}

	salt, err := genRandomBytes(saltLen)
	if err != nil {
		return Argon2Hash{}, err
	}

	return hashWithSalt(raw, salt), nil
}

func hashWithSalt(raw, salt []byte) Argon2Hash {
	digest := argon2.IDKey(raw, salt, argonIterations, argonMemoryKiB, argonParallelism, hashLen)

	return Argon2Hash{
		Variant:     argonVariant,
		Version:     argon2.Version,
		MemoryKiB:   argonMemoryKiB,
		Iterations:  argonIterations,
		Parallelism: argonParallelism,
		Salt:        salt,
		Hash:        digest,
	}
}

// MatchBytes reports whether raw hashes to the same digest using the
// parameters and salt embedded in h. The comparison is constant-time.
func (h Argon2Hash) MatchBytes(raw []byte) bool {
	if h.Variant != argonVariant || h.Version != argon2.Version {
		return false
	}

	digest := argon2.IDKey(raw, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))

	return subtle.ConstantTimeCompare(digest, h.Hash) == 1
}

// ParseArgon2Hash parses the standard argon2 string representation:
//
//	$argon2id$v=19$m=47104,t=1,p=1$<b64 salt>$<b64 hash>
func ParseArgon2Hash(raw string) (Argon2Hash, error) {
	parts := strings.Split(raw, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("malformed hash string: %w", ErrInvalidInput)
	}

	h := Argon2Hash{
		Variant: parts[1],
	}

	if h.Variant != argonVariant {
		return Argon2Hash{}, fmt.Errorf("unsupported variant %q: %w", h.Variant, ErrInvalidInput)
	}

	if _, err := fmt.Sscanf(parts[2], "v=%d", &h.Version); err != nil {
		return Argon2Hash{}, fmt.Errorf("malformed version: %w", ErrInvalidInput)
	}

	if h.Version != argon2.Version {
		return Argon2Hash{}, fmt.Errorf("unsupported version %d: %w", h.Version, ErrInvalidInput)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.MemoryKiB, &h.Iterations, &h.Parallelism); err != nil {
		return Argon2Hash{}, fmt.Errorf("malformed parameters: %w", ErrInvalidInput)
	}

	var err error
	h.Salt, err = base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("malformed salt: %w", ErrInvalidInput)
	}

	h.Hash, err = base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("malformed hash: %w", ErrInvalidInput)
	}

	return h, nil
}

// String returns the standard argon2 string representation of the hash.
func (h Argon2Hash) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "$%s$v=%d$m=%d,t=%d,p=%d$", h.Variant, h.Version, h.MemoryKiB, h.Iterations, h.Parallelism)
	b.WriteString(base64.RawStdEncoding.EncodeToString(h.Salt))
	b.WriteString("$")
	b.WriteString(base64.RawStdEncoding.EncodeToString(h.Hash))

	return b.String()
}

func (h Argon2Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Argon2Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseArgon2Hash(string(text))
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// Scan implements sql.Scanner so hashes can be read directly from a database column.
func (h *Argon2Hash) Scan(src any) error {
	s, ok := src.(string)
	if !ok {
		return fmt.Errorf("cannot scan %T into Argon2Hash", src)
	}

	return h.UnmarshalText([]byte(s))
}
