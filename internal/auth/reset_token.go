package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dstam/groundwork/internal/krypto"
)

// tokenEpoch is the reference date for the day counter embedded in reset
// tokens. It is intentionally not the unix epoch, the day counts stay
// small enough for compact base36 encoding.
var tokenEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// tokenKeySalt namespaces the HMAC key so the same secret used elsewhere
// can never produce a valid reset token.
const tokenKeySalt = "groundwork/internal/auth.ResetTokenGenerator"

const secondsPerDay = 24 * 60 * 60

// maxBase36Len caps the timestamp part of a token. Day counts fit in far
// fewer digits, anything longer is garbage input.
const maxBase36Len = 13

// ResetTokenGenerator issues and verifies password reset tokens.
//
// Tokens are stateless: nothing is stored when one is issued. A token is
// an HMAC over a snapshot of the user's mutable state (password hash,
// last login, active flag) plus a day-granular timestamp. Changing the
// password or logging in changes the snapshot, which invalidates every
// previously issued token for that user. That makes tokens single use
// per state without a server-side "used tokens" set.
type ResetTokenGenerator struct {
	key     []byte
	timeout time.Duration

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

// NewResetTokenGenerator creates a generator signing with a key derived
// from secret. Tokens remain valid for the given timeout, bucketed to
// whole days (see CheckToken).
func NewResetTokenGenerator(secret krypto.Secret, timeout time.Duration) *ResetTokenGenerator {
	key := sha256.Sum256(append([]byte(tokenKeySalt), secret.SecretValue()...))

	return &ResetTokenGenerator{
		key:     key[:],
		timeout: timeout,
		NowFunc: time.Now,
	}
}

// MakeToken issues a token bound to the user's current state.
func (g *ResetTokenGenerator) MakeToken(u User) string {
	return g.tokenWithTimestamp(u, g.epochDays(g.NowFunc()))
}

// CheckToken reports whether token is a valid, unexpired token for the
// user. It never errors: nil users, malformed input and forged or
// expired tokens all result in false.
func (g *ResetTokenGenerator) CheckToken(u *User, token string) bool {
	if u == nil || token == "" {
		return false
	}

	tsPart, _, found := strings.Cut(token, "-")
	if !found || len(tsPart) > maxBase36Len {
		return false
	}

	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts < 0 {
		return false
	}

	// Recompute with the timestamp from the token, not the current time.
	expected := g.tokenWithTimestamp(*u, int(ts))
	if !hmac.Equal([]byte(token), []byte(expected)) {
		return false
	}

	// The timeout is configured in seconds but elapsed time is measured
	// in whole days, so the effective resolution is day buckets.
	elapsed := g.epochDays(g.NowFunc()) - int(ts)

	return elapsed <= int(g.timeout.Seconds())/secondsPerDay
}

func (g *ResetTokenGenerator) tokenWithTimestamp(u User, ts int) string {
	return fmt.Sprintf("%s-%s", strconv.FormatInt(int64(ts), 36), g.digest(u, ts))
}

func (g *ResetTokenGenerator) digest(u User, ts int) string {
	mac := hmac.New(sha256.New, g.key)
	io.WriteString(mac, hashInput(u, ts))

	full := hex.EncodeToString(mac.Sum(nil))

	// Keep every other character. Tokens end up in URLs, half the digest
	// is plenty while keeping links short.
	out := make([]byte, 0, len(full)/2)
	for i := 0; i < len(full); i += 2 {
		out = append(out, full[i])
	}

	return string(out)
}

// hashInput snapshots the mutable user state a token is bound to.
func hashInput(u User, ts int) string {
	lastLogin := ""
	if u.LastLogin != nil {
		// Whole seconds: the stored value loses sub-second precision, a
		// token derived from a freshly written user must equal one derived
		// from the reloaded row.
		lastLogin = u.LastLogin.UTC().Truncate(time.Second).Format(time.RFC3339)
	}

	return strconv.FormatInt(u.ID, 10) +
		strconv.FormatBool(u.IsActive) +
		u.PasswordHash.String() +
		lastLogin +
		strconv.Itoa(ts)
}

// epochDays counts the calendar days (UTC) between tokenEpoch and now.
func (g *ResetTokenGenerator) epochDays(now time.Time) int {
	now = now.UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	return int(date.Sub(tokenEpoch).Hours() / 24)
}
