package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sanstorm15/CourseWork/internal/crypto"
	"github.com/Sanstorm15/CourseWork/internal/model"
)

// MinPasswordLength matches the constraint the journal has always enforced.
const MinPasswordLength = 6

// UserStore is the persistence collaborator the session service depends on.
// Save is insert-or-update: a zero ID inserts, otherwise the row is updated
// with an optimistic version check. Email uniqueness is enforced by the store
// and surfaced as ErrDuplicateEmail; a version conflict as
// ErrConcurrentModification; absence as ErrNotFound.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id int64) (model.User, error)
	Save(ctx context.Context, user model.User) (model.User, error)
}

// Service orchestrates credential verification, token issuance and session
// resolution. It holds no mutable state of its own; the store is the only
// shared resource.
type Service struct {
	store    UserStore
	tokenTTL time.Duration
	now      func() time.Time
}

// NewService creates a Service. A non-positive ttl falls back to the 24h
// default window.
func NewService(store UserStore, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		store:    store,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// WithClock overrides the wall clock. Used by expiry tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterInput carries the transient registration fields. The plaintext
// password is never stored.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      model.Role
}

func (in *RegisterInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
}

func (in RegisterInput) validate() error {
	if len(in.FirstName) < 2 || len(in.FirstName) > 50 {
		return fmt.Errorf("%w: first name must be 2-50 characters", ErrInvalidInput)
	}
	if len(in.LastName) < 2 || len(in.LastName) > 50 {
		return fmt.Errorf("%w: last name must be 2-50 characters", ErrInvalidInput)
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if len(in.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if !in.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// validateEmail rejects the token delimiter along with the obvious shape
// errors, which keeps split-on-delimiter decoding unambiguous.
func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	if strings.Contains(email, tokenDelimiter) {
		return fmt.Errorf("%w: email must not contain %q", ErrInvalidInput, tokenDelimiter)
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return nil
}

// Register creates a new active identity and issues its first session token.
// ErrDuplicateEmail is returned without mutating the store.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, string, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return model.User{}, "", err
	}

	if _, err := s.store.FindByEmail(ctx, in.Email); err == nil {
		return model.User{}, "", ErrDuplicateEmail
	} else if !isNotFound(err) {
		return model.User{}, "", err
	}

	user := model.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: crypto.HashPassword(in.Password),
		Role:         in.Role,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	}

	saved, err := s.store.Save(ctx, user)
	if err != nil {
		return model.User{}, "", err
	}

	return saved, s.IssueSession(saved), nil
}

// Login verifies credentials and records the login instant. The lastLoginAt
// write is best-effort: a version conflict there must not fail the login.
func (s *Service) Login(ctx context.Context, email, password string) (model.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return model.User{}, "", ErrUnknownEmail
		}
		return model.User{}, "", err
	}

	if !user.Active {
		return model.User{}, "", ErrAccountInactive
	}
	if !crypto.VerifyPassword(password, user.PasswordHash) {
		return model.User{}, "", ErrBadPassword
	}

	loginAt := s.now().UTC()
	user.LastLoginAt = &loginAt
	if saved, err := s.store.Save(ctx, user); err == nil {
		user = saved
	}

	return user, s.IssueSession(user), nil
}

// IssueSession wraps the token codec with the service clock.
func (s *Service) IssueSession(user model.User) string {
	return IssueToken(user.ID, user.Email, s.now())
}

// ResolveSession turns a bearer token back into a live identity: decode,
// expiry check, lookup by id with email match, active check.
func (s *Service) ResolveSession(ctx context.Context, token string) (model.User, error) {
	data, err := DecodeToken(token)
	if err != nil {
		return model.User{}, err
	}

	if data.Expired(s.now(), s.tokenTTL) {
		return model.User{}, ErrTokenExpired
	}

	user, err := s.store.FindByID(ctx, data.UserID)
	if err != nil {
		if isNotFound(err) {
			return model.User{}, ErrUnknownIdentity
		}
		return model.User{}, err
	}
	if user.Email != data.Email {
		return model.User{}, ErrUnknownIdentity
	}
	if !user.Active {
		return model.User{}, ErrAccountInactive
	}

	return user, nil
}

// ChangePassword swaps the stored digest after verifying the old password.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrUnknownIdentity
		}
		return err
	}

	if !crypto.VerifyPassword(oldPassword, user.PasswordHash) {
		return ErrBadPassword
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	user.PasswordHash = crypto.HashPassword(newPassword)
	_, err = s.store.Save(ctx, user)
	return err
}

// Logout is a stateless no-op: tokens are self-contained and there is no
// server-side revocation. Clients discard the token.
func (s *Service) Logout(token string) error {
	_ = token
	return nil
}

// UpdateProfile changes the display names. Nil fields are left untouched.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, firstName, lastName *string) (model.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return model.User{}, ErrUnknownIdentity
		}
		return model.User{}, err
	}

	if firstName != nil {
		name := strings.TrimSpace(*firstName)
		if len(name) < 2 || len(name) > 50 {
			return model.User{}, fmt.Errorf("%w: first name must be 2-50 characters", ErrInvalidInput)
		}
		user.FirstName = name
	}
	if lastName != nil {
		name := strings.TrimSpace(*lastName)
		if len(name) < 2 || len(name) > 50 {
			return model.User{}, fmt.Errorf("%w: last name must be 2-50 characters", ErrInvalidInput)
		}
		user.LastName = name
	}

	return s.store.Save(ctx, user)
}

// SetActive activates or deactivates an identity. Admin-gated at the
// transport layer.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool) (model.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return model.User{}, ErrUnknownIdentity
		}
		return model.User{}, err
	}
	user.Active = active
	return s.store.Save(ctx, user)
}

// ChangeRole moves an identity to another role. Admin-gated at the transport
// layer; this is the only path that mutates a role.
func (s *Service) ChangeRole(ctx context.Context, userID int64, role model.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, ErrInvalidRole
	}
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return model.User{}, ErrUnknownIdentity
		}
		return model.User{}, err
	}
	user.Role = role
	return s.store.Save(ctx, user)
}

// ResetPassword generates a temporary password for an identity and stores its
// digest. The plaintext is returned once, for the administrator to hand over.
func (s *Service) ResetPassword(ctx context.Context, userID int64) (string, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return "", ErrUnknownIdentity
		}
		return "", err
	}

	temp := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	user.PasswordHash = crypto.HashPassword(temp)
	if _, err := s.store.Save(ctx, user); err != nil {
		return "", err
	}
	return temp, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
