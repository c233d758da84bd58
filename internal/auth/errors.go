package auth

import "errors"

// Closed error taxonomy for the authentication and authorization core. Every
// failure an operation can produce is one of these values; the HTTP layer
// selects status codes with errors.Is.
var (
	// ErrDuplicateEmail is returned by Register when the email is taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUnknownEmail is returned by Login when no identity has the email.
	ErrUnknownEmail = errors.New("unknown email")
	// ErrUnknownIdentity is returned when an identity id does not resolve.
	ErrUnknownIdentity = errors.New("unknown identity")
	// ErrAccountInactive is returned for deactivated identities.
	ErrAccountInactive = errors.New("account deactivated")
	// ErrBadPassword is returned on credential or old-password mismatch.
	ErrBadPassword = errors.New("bad password")
	// ErrPasswordTooShort is returned when a new password is under 6 characters.
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	// ErrMalformedToken is returned when a bearer token does not decode.
	ErrMalformedToken = errors.New("malformed token")
	// ErrTokenExpired is returned when a token is past its validity window.
	ErrTokenExpired = errors.New("token expired")
	// ErrDenied is an authorization (not authentication) failure.
	ErrDenied = errors.New("access denied")
	// ErrConcurrentModification is surfaced when the store's optimistic
	// version check rejects a write; callers may retry.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrInvalidInput covers field validation failures at registration.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidRole is returned for a role outside the closed set.
	ErrInvalidRole = errors.New("invalid role")

	// ErrNotFound is the store-level absence signal. The service translates
	// it into ErrUnknownEmail or ErrUnknownIdentity depending on the lookup.
	ErrNotFound = errors.New("not found")
)
