// Package signature verifies HMAC-based ping proofs.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// MaxSkew bounds the accepted clock drift between the signing client
// and the server, in either direction.
const MaxSkew = 5 * time.Minute

var (
	// ErrSecretUnset means the host has no signing secret configured.
	ErrSecretUnset = errors.New("signing secret is not configured")
	// ErrMissingField means the ping lacks a timestamp or signature.
	ErrMissingField = errors.New("timestamp and signature are required")
	// ErrBadTimestamp means the timestamp is not numeric.
	ErrBadTimestamp = errors.New("timestamp is not a number")
	// ErrSkew means the timestamp is outside the accepted window.
	ErrSkew = errors.New("timestamp outside allowed clock-skew window")
	// ErrBadSignature means the computed signature does not match.
	ErrBadSignature = errors.New("signature mismatch")
)

// Verifier validates that a ping was produced by a holder of the shared
// secret. Side-effect free.
type Verifier struct {
	secret string
	now    func() time.Time
}

// NewVerifier creates a verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// Verify checks the signature over tenant, client id and timestamp.
// The signed message is the newline-joined "tenant\nid\ntimestamp";
// the field order is part of the wire contract and must not change.
func (v *Verifier) Verify(tenant, id, timestamp, sig string) error {
	if v.secret == "" {
		return ErrSecretUnset
	}
	if strings.TrimSpace(timestamp) == "" || strings.TrimSpace(sig) == "" {
		return ErrMissingField
	}

	ts, err := strconv.ParseFloat(strings.TrimSpace(timestamp), 64)
	if err != nil {
		return ErrBadTimestamp
	}

	nowMillis := v.now().UnixMilli()
	skew := nowMillis - int64(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSkew.Milliseconds() {
		return ErrSkew
	}

	expected := Sign(v.secret, tenant, id, strings.TrimSpace(timestamp))
	// hmac.Equal is constant-time over the compared bytes; lowering both
	// sides first makes the hex comparison case-insensitive.
	if !hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the lowercase hex HMAC-SHA256 signature for a ping.
// Exported so clients and tests can produce valid signatures.
func Sign(secret, tenant, id, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tenant + "\n" + id + "\n" + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
