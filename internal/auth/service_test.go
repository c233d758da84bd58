package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanstorm15/CourseWork/internal/crypto"
	"github.com/Sanstorm15/CourseWork/internal/model"
)

// memStore is an in-memory UserStore with the same contract as the Postgres
// repository: email uniqueness, insert-or-update, optimistic versioning.
type memStore struct {
	mu           sync.Mutex
	nextID       int64
	users        map[int64]model.User
	writes       int
	failNextSave error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]model.User)}
}

func (m *memStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *memStore) FindByID(_ context.Context, id int64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return user, nil
}

func (m *memStore) Save(_ context.Context, user model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNextSave != nil {
		err := m.failNextSave
		m.failNextSave = nil
		return model.User{}, err
	}

	for id, existing := range m.users {
		if existing.Email == user.Email && id != user.ID {
			return model.User{}, ErrDuplicateEmail
		}
	}

	if user.ID == 0 {
		m.nextID++
		user.ID = m.nextID
		user.Version = 1
	} else {
		existing, ok := m.users[user.ID]
		if !ok {
			return model.User{}, ErrNotFound
		}
		if existing.Version != user.Version {
			return model.User{}, ErrConcurrentModification
		}
		user.Version++
	}

	m.users[user.ID] = user
	m.writes++
	return user, nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, DefaultTokenTTL), store
}

func register(t *testing.T, svc *Service, email, password string, role model.Role) model.User {
	t.Helper()
	user, token, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Password:  password,
		Role:      role,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	return user
}

func TestRegisterAndResolve(t *testing.T) {
	svc, _ := newTestService()

	user, token, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "Anna",
		LastName:  "Kovalenko",
		Email:     "Anna@Example.COM",
		Password:  "secret1",
		Role:      model.RoleStudent,
	})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", user.Email, "email is normalized")
	assert.True(t, user.Active)
	assert.NotEqual(t, "secret1", user.PasswordHash, "plaintext never stored")

	resolved, err := svc.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.Equal(t, user.Email, resolved.Email)
}

func TestRegisterValidation(t *testing.T) {
	svc, store := newTestService()

	tests := []struct {
		name    string
		in      RegisterInput
		wantErr error
	}{
		{"short password", RegisterInput{FirstName: "An", LastName: "Ko", Email: "a@x.com", Password: "12345", Role: model.RoleStudent}, ErrPasswordTooShort},
		{"bad role", RegisterInput{FirstName: "An", LastName: "Ko", Email: "a@x.com", Password: "123456", Role: model.Role("dean")}, ErrInvalidRole},
		{"short first name", RegisterInput{FirstName: "A", LastName: "Ko", Email: "a@x.com", Password: "123456", Role: model.RoleStudent}, ErrInvalidInput},
		{"missing email", RegisterInput{FirstName: "An", LastName: "Ko", Email: "", Password: "123456", Role: model.RoleStudent}, ErrInvalidInput},
		{"email without at", RegisterInput{FirstName: "An", LastName: "Ko", Email: "not-an-email", Password: "123456", Role: model.RoleStudent}, ErrInvalidInput},
		{"email with token delimiter", RegisterInput{FirstName: "An", LastName: "Ko", Email: "a:b@x.com", Password: "123456", Role: model.RoleStudent}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, store.writes, "rejected registrations must not touch the store")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, store := newTestService()
	register(t, svc, "a@x.com", "secret1", model.RoleStudent)
	writesBefore := store.writes

	_, _, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "Other",
		LastName:  "User",
		Email:     "a@x.com",
		Password:  "secret2",
		Role:      model.RoleTeacher,
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, writesBefore, store.writes, "duplicate registration must not mutate the store")
}

func TestLogin(t *testing.T) {
	svc, store := newTestService()
	user := register(t, svc, "a@x.com", "secret1", model.RoleStudent)

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.Login(context.Background(), "nobody@x.com", "secret1")
		assert.ErrorIs(t, err, ErrUnknownEmail)
	})

	t.Run("wrong password never locks out", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			_, _, err := svc.Login(context.Background(), "a@x.com", "wrong")
			assert.ErrorIs(t, err, ErrBadPassword)
		}
		_, _, err := svc.Login(context.Background(), "a@x.com", "secret1")
		assert.NoError(t, err, "repeated failures must not lock the account")
	})

	t.Run("success records last login", func(t *testing.T) {
		logged, token, err := svc.Login(context.Background(), "a@x.com", "secret1")
		require.NoError(t, err)
		require.NotEmpty(t, token)
		assert.NotNil(t, logged.LastLoginAt)
	})

	t.Run("inactive account", func(t *testing.T) {
		stored := store.users[user.ID]
		stored.Active = false
		store.users[user.ID] = stored

		_, _, err := svc.Login(context.Background(), "a@x.com", "secret1")
		assert.ErrorIs(t, err, ErrAccountInactive)
	})
}

func TestLoginSurvivesConflictingLastLoginWrite(t *testing.T) {
	svc, store := newTestService()
	register(t, svc, "a@x.com", "secret1", model.RoleStudent)

	store.failNextSave = ErrConcurrentModification
	_, token, err := svc.Login(context.Background(), "a@x.com", "secret1")
	assert.NoError(t, err, "lastLoginAt write is best-effort")
	assert.NotEmpty(t, token)
}

func TestResolveSessionExpired(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	svc := NewService(store, DefaultTokenTTL).WithClock(func() time.Time { return now })

	_ = register(t, svc, "a@x.com", "secret1", model.RoleStudent)
	_, token, err := svc.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)

	now = now.Add(24*time.Hour + time.Minute)
	_, err = svc.ResolveSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestResolveSessionInactiveIdentity(t *testing.T) {
	svc, store := newTestService()
	user := register(t, svc, "a@x.com", "secret1", model.RoleStudent)
	_, token, err := svc.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)

	stored := store.users[user.ID]
	stored.Active = false
	store.users[user.ID] = stored

	_, err = svc.ResolveSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestResolveSessionEmailMismatch(t *testing.T) {
	svc, store := newTestService()
	user := register(t, svc, "a@x.com", "secret1", model.RoleStudent)
	token := svc.IssueSession(user)

	// A token outlives an email change; the id lookup then fails the match.
	stored := store.users[user.ID]
	stored.Email = "renamed@x.com"
	store.users[user.ID] = stored

	_, err := svc.ResolveSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestResolveSessionUnknownIdentity(t *testing.T) {
	svc, _ := newTestService()
	token := IssueToken(999, "ghost@x.com", time.Now())

	_, err := svc.ResolveSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService()
	user := register(t, svc, "a@x.com", "secret1", model.RoleStudent)

	t.Run("unknown identity", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), 999, "secret1", "secret22")
		assert.ErrorIs(t, err, ErrUnknownIdentity)
	})

	t.Run("wrong old password", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), user.ID, "wrong", "secret22")
		assert.ErrorIs(t, err, ErrBadPassword)
	})

	t.Run("five characters rejected", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), user.ID, "secret1", "12345")
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})

	t.Run("six characters accepted and login flips", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), user.ID, "secret1", "123456")
		require.NoError(t, err)

		_, _, err = svc.Login(context.Background(), "a@x.com", "secret1")
		assert.ErrorIs(t, err, ErrBadPassword)
		_, _, err = svc.Login(context.Background(), "a@x.com", "123456")
		assert.NoError(t, err)
	})
}

func TestChangePasswordConcurrentModification(t *testing.T) {
	svc, store := newTestService()
	user := register(t, svc, "a@x.com", "secret1", model.RoleStudent)

	store.failNextSave = ErrConcurrentModification
	err := svc.ChangePassword(context.Background(), user.ID, "secret1", "secret22")
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestLogoutIsStatelessNoOp(t *testing.T) {
	svc, _ := newTestService()
	user := register(t, svc, "a@x.com", "secret1", model.RoleStudent)
	token := svc.IssueSession(user)

	require.NoError(t, svc.Logout(token))

	// Logout revokes nothing; the token stays resolvable until expiry.
	_, err := svc.ResolveSession(context.Background(), token)
	assert.NoError(t, err)
}

func TestAdminMutations(t *testing.T) {
	svc, _ := newTestService()
	user := register(t, svc, "a@x.com", "secret1", model.RoleStudent)

	t.Run("deactivate and reactivate", func(t *testing.T) {
		updated, err := svc.SetActive(context.Background(), user.ID, false)
		require.NoError(t, err)
		assert.False(t, updated.Active)

		updated, err = svc.SetActive(context.Background(), user.ID, true)
		require.NoError(t, err)
		assert.True(t, updated.Active)
	})

	t.Run("change role", func(t *testing.T) {
		updated, err := svc.ChangeRole(context.Background(), user.ID, model.RoleTeacher)
		require.NoError(t, err)
		assert.Equal(t, model.RoleTeacher, updated.Role)

		_, err = svc.ChangeRole(context.Background(), user.ID, model.Role("dean"))
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("reset password", func(t *testing.T) {
		temp, err := svc.ResetPassword(context.Background(), user.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(temp), MinPasswordLength)
		assert.False(t, strings.Contains(temp, "-"))

		_, _, err = svc.Login(context.Background(), "a@x.com", temp)
		assert.NoError(t, err)
	})
}

func TestEndToEndFlow(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, RegisterInput{
		FirstName: "Ivan",
		LastName:  "Petrenko",
		Email:     "a@x.com",
		Password:  "secret1",
		Role:      model.RoleStudent,
	})
	require.NoError(t, err)

	logged, token, err := svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, logged.ID)

	resolved, err := svc.ResolveSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, resolved.ID)
	assert.Equal(t, "a@x.com", resolved.Email)

	require.NoError(t, svc.ChangePassword(ctx, registered.ID, "secret1", "secret22"))

	_, _, err = svc.Login(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrBadPassword)

	_, _, err = svc.Login(ctx, "a@x.com", "secret22")
	assert.NoError(t, err)
}

func TestVerifyAgainstStoredDigest(t *testing.T) {
	// The stored digest format is shared with the previous backend.
	svc, store := newTestService()
	user := register(t, svc, "a@x.com", "secret1", model.RoleStudent)
	assert.Equal(t, crypto.HashPassword("secret1"), store.users[user.ID].PasswordHash)
}
