package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// HashPassword digests a plaintext password with SHA-256 and renders it as
// standard base64. Unsalted and unstretched: the stored format is shared with
// the original journal database, so identical passwords produce identical
// digests. See DESIGN.md before changing the scheme.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyPassword recomputes the digest and compares in constant time.
func VerifyPassword(password, digest string) bool {
	computed := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}
