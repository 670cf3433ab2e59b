package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentra-auth/sentra/internal/shared"
	"github.com/sentra-auth/sentra/internal/users"
)

type memoryUserDir struct {
	byEmail map[string]*users.User
	byID    map[string]*users.User
}

func newMemoryUserDir() *memoryUserDir {
	return &memoryUserDir{byEmail: make(map[string]*users.User), byID: make(map[string]*users.User)}
}

func (d *memoryUserDir) add(user *users.User) {
	d.byEmail[user.Email] = user
	d.byID[user.ID] = user
}

func (d *memoryUserDir) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	user, ok := d.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (d *memoryUserDir) FindByID(ctx context.Context, id string) (*users.User, error) {
	user, ok := d.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*Session)}
}

func (r *memorySessionRepo) Create(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	copied.CreatedAt = time.Now()
	r.sessions[session.ID] = &copied
	session.CreatedAt = copied.CreatedAt
	return nil
}

func (r *memorySessionRepo) FindActiveByAccessID(ctx context.Context, accessID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.AccessID == accessID && session.IsActive {
			copied := *session
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memorySessionRepo) FindActiveByRefreshID(ctx context.Context, refreshID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.RefreshID == refreshID && session.IsActive {
			copied := *session
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memorySessionRepo) Rotate(ctx context.Context, sessionID, currentRefreshID, newAccessID, newRefreshID string, accessExpiresAt, refreshExpiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok || !session.IsActive || session.RefreshID != currentRefreshID {
		return shared.ErrSessionInvalid
	}
	session.AccessID = newAccessID
	session.RefreshID = newRefreshID
	session.AccessExpiresAt = accessExpiresAt
	session.RefreshExpiresAt = refreshExpiresAt
	return nil
}

func (r *memorySessionRepo) Deactivate(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		session.IsActive = false
	}
	return nil
}

func (r *memorySessionRepo) DeactivateAllForUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.UserID == userID {
			session.IsActive = false
		}
	}
	return nil
}

func (r *memorySessionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, session := range r.sessions {
		if session.IsActive && !now.Before(session.RefreshExpiresAt) {
			session.IsActive = false
			count++
		}
	}
	return count, nil
}

func (r *memorySessionRepo) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, session := range r.sessions {
		if session.IsActive {
			count++
		}
	}
	return count
}

const testPassword = "correct horse battery"

func testUser(id, email string, active bool) *users.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	return &users.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     active,
	}
}

func newAuthFixture() (*Service, *memoryUserDir, *memorySessionRepo) {
	dir := newMemoryUserDir()
	repo := newMemorySessionRepo()
	service := NewService(dir, repo, NewTokenIssuer("test-secret"), 15*time.Minute, 7*24*time.Hour)
	return service, dir, repo
}

func TestLoginIssuesVerifiablePair(t *testing.T) {
	service, dir, _ := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))

	pair, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	ident, err := service.VerifyAccess(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", ident.User.ID)
	require.NotEmpty(t, ident.SessionID)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	service, dir, _ := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))
	dir.add(testUser("u2", "gone@example.com", false))

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", testPassword},
		{"wrong password", "a@example.com", "not the password"},
		{"inactive account", "gone@example.com", testPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Login(context.Background(), tc.email, tc.password)
			require.ErrorIs(t, err, shared.ErrInvalidCredentials)
		})
	}
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	service, dir, _ := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))

	pair, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)

	_, err = service.VerifyAccess(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestVerifyAccessRejectsInactiveUser(t *testing.T) {
	service, dir, _ := newAuthFixture()
	user := testUser("u1", "a@example.com", true)
	dir.add(user)

	pair, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)

	user.IsActive = false
	_, err = service.VerifyAccess(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRefreshRotatesBothIdentifiers(t *testing.T) {
	service, dir, _ := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))

	pair, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)

	rotated, err := service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, rotated.AccessToken)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The pre-rotation credentials stop working immediately.
	_, err = service.VerifyAccess(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
	_, err = service.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, shared.ErrSessionInvalid)

	// The rotated pair verifies.
	_, err = service.VerifyAccess(context.Background(), rotated.AccessToken)
	require.NoError(t, err)
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	service, dir, _ := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))

	pair, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := service.Refresh(context.Background(), pair.RefreshToken)
			errs <- err
		}()
	}
	start.Done()

	winners := 0
	for i := 0; i < attempts; i++ {
		if err := <-errs; err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, shared.ErrSessionInvalid)
		}
	}
	require.Equal(t, 1, winners)
}

func TestRefreshPastWindowRetiresSession(t *testing.T) {
	service, dir, repo := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))

	pair, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)

	service.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = service.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, shared.ErrSessionInvalid)
	require.Zero(t, repo.activeCount())
}

func TestAccessExpiryIsCheckedAgainstTheRow(t *testing.T) {
	service, dir, _ := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))

	pair, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)

	service.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	service.issuer.now = service.now
	_, err = service.VerifyAccess(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestLogoutRevokesOnlyTheCurrentSession(t *testing.T) {
	service, dir, repo := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))

	first, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)
	second, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, 2, repo.activeCount())

	ident, err := service.VerifyAccess(context.Background(), first.AccessToken)
	require.NoError(t, err)
	require.NoError(t, service.Logout(context.Background(), ident))

	_, err = service.VerifyAccess(context.Background(), first.AccessToken)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
	_, err = service.VerifyAccess(context.Background(), second.AccessToken)
	require.NoError(t, err)
}

func TestLogoutWithoutSessionRevokesAll(t *testing.T) {
	service, dir, repo := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))

	_, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)
	_, err = service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)

	ident := &shared.Identity{User: shared.Principal{ID: "u1"}}
	require.NoError(t, service.Logout(context.Background(), ident))
	require.Zero(t, repo.activeCount())
}
