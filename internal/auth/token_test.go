package auth

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issued := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	token := IssueToken(42, "student@example.com", issued)

	data, err := DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), data.UserID)
	assert.Equal(t, "student@example.com", data.Email)
	assert.Equal(t, issued, data.IssuedAt)
}

func TestTokenWireFormat(t *testing.T) {
	// Tokens must stay byte-compatible with the previous backend:
	// base64(id ":" email ":" epochMillis).
	token := IssueToken(7, "a@x.com", time.UnixMilli(1700000000000))
	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Equal(t, "7:a@x.com:1700000000000", string(raw))
}

func TestDecodeTokenMalformed(t *testing.T) {
	encode := func(payload string) string {
		return base64.StdEncoding.EncodeToString([]byte(payload))
	}

	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"too few fields", encode("42:a@x.com")},
		{"too many fields", encode("42:a@x.com:123:extra")},
		{"empty payload", encode("")},
		{"non-numeric id", encode("abc:a@x.com:1700000000000")},
		{"zero id", encode("0:a@x.com:1700000000000")},
		{"negative id", encode("-5:a@x.com:1700000000000")},
		{"non-numeric timestamp", encode("42:a@x.com:soon")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeToken(tt.token)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	issued := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	data := TokenData{UserID: 1, Email: "a@x.com", IssuedAt: issued}

	assert.False(t, data.Expired(issued.Add(time.Minute), DefaultTokenTTL))
	assert.False(t, data.Expired(issued.Add(24*time.Hour), DefaultTokenTTL), "window boundary is inclusive")
	assert.True(t, data.Expired(issued.Add(24*time.Hour+time.Millisecond), DefaultTokenTTL))
}
