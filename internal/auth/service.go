package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentra-auth/sentra/internal/shared"
	"github.com/sentra-auth/sentra/internal/users"
)

// UserDirectory is the slice of the users module the session manager needs.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// Service issues, rotates, verifies and revokes paired credentials.
type Service struct {
	users      UserDirectory
	sessions   Repository
	issuer     *TokenIssuer
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(userDir UserDirectory, sessions Repository, issuer *TokenIssuer, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		users:      userDir,
		sessions:   sessions,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Login verifies credentials and mints a fresh session with a signed
// access/refresh pair. Unknown email, bad password and disabled accounts are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	now := s.now()
	session := &Session{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		AccessID:         uuid.NewString(),
		RefreshID:        uuid.NewString(),
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
		IsActive:         true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return s.signPair(user.ID, session)
}

// VerifyAccess resolves a signed access token into an identity. The token
// must verify cryptographically, its jti must still belong to a live session,
// the in-row access expiry must not have passed, and the user must be active.
func (s *Service) VerifyAccess(ctx context.Context, token string) (*shared.Identity, error) {
	claims, err := s.issuer.Verify(token, TokenTypeAccess)
	if err != nil {
		return nil, shared.ErrInvalidToken
	}
	session, err := s.sessions.FindActiveByAccessID(ctx, claims.ID)
	if err != nil {
		return nil, shared.ErrInvalidToken
	}
	if !s.now().Before(session.AccessExpiresAt) {
		return nil, shared.ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil || !user.IsActive {
		return nil, shared.ErrInvalidToken
	}
	return &shared.Identity{User: user.Principal(), SessionID: session.ID}, nil
}

// Refresh rotates the session's credential pair in place. The previous access
// and refresh identifiers stop verifying immediately. Past the refresh window
// the session is retired and the user must log in again.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.issuer.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, shared.ErrSessionInvalid
	}
	session, err := s.sessions.FindActiveByRefreshID(ctx, claims.ID)
	if err != nil {
		return nil, shared.ErrSessionInvalid
	}

	now := s.now()
	if !now.Before(session.RefreshExpiresAt) {
		_ = s.sessions.Deactivate(ctx, session.ID)
		return nil, shared.ErrSessionInvalid
	}

	currentRefreshID := session.RefreshID
	session.AccessID = uuid.NewString()
	session.RefreshID = uuid.NewString()
	session.AccessExpiresAt = now.Add(s.accessTTL)
	session.RefreshExpiresAt = now.Add(s.refreshTTL)

	if err := s.sessions.Rotate(ctx, session.ID, currentRefreshID, session.AccessID, session.RefreshID, session.AccessExpiresAt, session.RefreshExpiresAt); err != nil {
		return nil, err
	}
	return s.signPair(session.UserID, session)
}

// Logout revokes the session the identity was resolved from. Without a
// session context it falls back to revoking every session of the user.
func (s *Service) Logout(ctx context.Context, ident *shared.Identity) error {
	if ident == nil {
		return shared.ErrAuthRequired
	}
	if ident.SessionID != "" {
		return s.sessions.Deactivate(ctx, ident.SessionID)
	}
	return s.sessions.DeactivateAllForUser(ctx, ident.User.ID)
}

// DeactivateAllForUser revokes every session owned by the user. Used on soft
// account deletion.
func (s *Service) DeactivateAllForUser(ctx context.Context, userID string) error {
	return s.sessions.DeactivateAllForUser(ctx, userID)
}

func (s *Service) signPair(userID string, session *Session) (*TokenPair, error) {
	accessToken, err := s.issuer.Sign(userID, session.AccessID, TokenTypeAccess, session.AccessExpiresAt)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.issuer.Sign(userID, session.RefreshID, TokenTypeRefresh, session.RefreshExpiresAt)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  session.AccessExpiresAt,
		RefreshExpiresAt: session.RefreshExpiresAt,
	}, nil
}
