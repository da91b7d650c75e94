package search

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/standardbeagle/logsearch-mcp/internal/errors"
	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

// DefaultCursorTTL bounds how long a minted cursor remains valid.
const DefaultCursorTTL = 30 * time.Minute

// EncodeCursor serializes a CursorPayload as the opaque base64url token
// clients carry round-trip.
func EncodeCursor(p types.CursorPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor reverses EncodeCursor, returning cursor_mismatch for any
// structurally invalid token — a tampered or foreign cursor is
// indistinguishable from a malformed one at this layer.
func DecodeCursor(token string) (types.CursorPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return types.CursorPayload{}, errors.New(errors.KindCursorMismatch, "decode_cursor", err)
	}
	var p types.CursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.CursorPayload{}, errors.New(errors.KindCursorMismatch, "decode_cursor", err)
	}
	return p, nil
}

// ValidateCursor checks a decoded cursor against the current query's
// fingerprint, the cursor TTL and session existence.
func ValidateCursor(p types.CursorPayload, fingerprint, sessionID string, ttl time.Duration, now time.Time, sessionExists bool) error {
	if p.Fingerprint != fingerprint {
		return errors.New(errors.KindCursorMismatch, "validate_cursor", nil)
	}
	if p.SessionID != sessionID {
		return errors.New(errors.KindCursorMismatch, "validate_cursor", nil)
	}
	if ttl <= 0 {
		ttl = DefaultCursorTTL
	}
	issued := time.Unix(p.IssuedAt, 0)
	if now.Sub(issued) > ttl {
		return errors.New(errors.KindCursorExpired, "validate_cursor", nil)
	}
	if !sessionExists {
		return errors.New(errors.KindCursorExpired, "validate_cursor", nil)
	}
	return nil
}
