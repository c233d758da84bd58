package auth

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bearer tokens are self-contained: base64(identityId ":" email ":" epochMillis).
// The format carries no signature, which keeps it byte-compatible with tokens
// issued by the previous journal backend. Forgeability is a documented
// limitation of that scheme (see DESIGN.md); validity comes from the resolve
// step re-checking the identity against the store.

const tokenDelimiter = ":"

// DefaultTokenTTL is the validity window measured from issuance.
const DefaultTokenTTL = 24 * time.Hour

// TokenData is the decoded content of a bearer token.
type TokenData struct {
	UserID   int64
	Email    string
	IssuedAt time.Time
}

// Expired reports whether the token fell out of its validity window at now.
func (d TokenData) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(d.IssuedAt) > ttl
}

// IssueToken encodes an identity reference and the supplied issuance instant.
// Pure over the clock reading.
func IssueToken(userID int64, email string, now time.Time) string {
	payload := strconv.FormatInt(userID, 10) + tokenDelimiter +
		email + tokenDelimiter +
		strconv.FormatInt(now.UnixMilli(), 10)
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

// DecodeToken reverses IssueToken. Any structural defect is ErrMalformedToken;
// expiry is checked separately by the caller against its clock.
func DecodeToken(token string) (TokenData, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return TokenData{}, fmt.Errorf("%w: not base64", ErrMalformedToken)
	}

	// Registration rejects emails containing the delimiter, so a well-formed
	// token always splits into exactly three fields.
	parts := strings.Split(string(raw), tokenDelimiter)
	if len(parts) != 3 {
		return TokenData{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedToken, len(parts))
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return TokenData{}, fmt.Errorf("%w: bad identity id", ErrMalformedToken)
	}

	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return TokenData{}, fmt.Errorf("%w: bad timestamp", ErrMalformedToken)
	}

	return TokenData{
		UserID:   userID,
		Email:    parts[1],
		IssuedAt: time.UnixMilli(millis).UTC(),
	}, nil
}
