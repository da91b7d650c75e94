package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

func TestCursor_EncodeDecodeRoundTrip(t *testing.T) {
	p := types.CursorPayload{
		SessionID:   "sess-1",
		FilePath:    "app.log",
		ByteOffset:  1024,
		RecordLine:  42,
		Fingerprint: "abc123",
		PageSize:    50,
		IssuedAt:    time.Now().Unix(),
	}
	token, err := EncodeCursor(p)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestCursor_DecodeMalformedToken(t *testing.T) {
	_, err := DecodeCursor("not-valid-base64url!!!")
	require.Error(t, err)
}

func TestCursor_ValidateFingerprintMismatch(t *testing.T) {
	p := types.CursorPayload{Fingerprint: "abc", SessionID: "s", IssuedAt: time.Now().Unix()}
	err := ValidateCursor(p, "different", "s", DefaultCursorTTL, time.Now(), true)
	require.Error(t, err)
}

func TestCursor_ValidateSessionMismatch(t *testing.T) {
	p := types.CursorPayload{Fingerprint: "abc", SessionID: "s1", IssuedAt: time.Now().Unix()}
	err := ValidateCursor(p, "abc", "s2", DefaultCursorTTL, time.Now(), true)
	require.Error(t, err)
}

func TestCursor_ValidateExpired(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	p := types.CursorPayload{Fingerprint: "abc", SessionID: "s", IssuedAt: issued.Unix()}
	err := ValidateCursor(p, "abc", "s", DefaultCursorTTL, time.Now(), true)
	require.Error(t, err)
}

func TestCursor_ValidateSessionGone(t *testing.T) {
	p := types.CursorPayload{Fingerprint: "abc", SessionID: "s", IssuedAt: time.Now().Unix()}
	err := ValidateCursor(p, "abc", "s", DefaultCursorTTL, time.Now(), false)
	require.Error(t, err)
}

func TestCursor_ValidateOK(t *testing.T) {
	p := types.CursorPayload{Fingerprint: "abc", SessionID: "s", IssuedAt: time.Now().Unix()}
	err := ValidateCursor(p, "abc", "s", DefaultCursorTTL, time.Now(), true)
	require.NoError(t, err)
}
