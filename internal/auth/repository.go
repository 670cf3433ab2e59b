package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-auth/sentra/internal/shared"
)

// Repository defines persistence operations for sessions.
type Repository interface {
	Create(ctx context.Context, session *Session) error
	FindActiveByAccessID(ctx context.Context, accessID string) (*Session, error)
	FindActiveByRefreshID(ctx context.Context, refreshID string) (*Session, error)
	Rotate(ctx context.Context, sessionID, currentRefreshID, newAccessID, newRefreshID string, accessExpiresAt, refreshExpiresAt time.Time) error
	Deactivate(ctx context.Context, sessionID string) error
	DeactivateAllForUser(ctx context.Context, userID string) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const sessionColumns = `id, user_id, access_jti, refresh_jti, access_expires_at, refresh_expires_at, is_active, created_at`

// Create persists a new session row.
func (r *PGRepository) Create(ctx context.Context, session *Session) error {
	const query = `
		INSERT INTO sessions (id, user_id, access_jti, refresh_jti, access_expires_at, refresh_expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING created_at
	`
	return r.pool.QueryRow(ctx, query,
		session.ID,
		session.UserID,
		session.AccessID,
		session.RefreshID,
		session.AccessExpiresAt,
		session.RefreshExpiresAt,
	).Scan(&session.CreatedAt)
}

// FindActiveByAccessID resolves a live session by its access identifier.
func (r *PGRepository) FindActiveByAccessID(ctx context.Context, accessID string) (*Session, error) {
	return r.findOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE access_jti = $1 AND is_active`, accessID)
}

// FindActiveByRefreshID resolves a live session by its refresh identifier.
func (r *PGRepository) FindActiveByRefreshID(ctx context.Context, refreshID string) (*Session, error) {
	return r.findOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_jti = $1 AND is_active`, refreshID)
}

// Rotate overwrites the credential pair in place, keyed on the refresh
// identifier the caller presented. When two refreshes race, the row matches
// only for the first one; the loser sees zero rows and ErrSessionInvalid.
func (r *PGRepository) Rotate(ctx context.Context, sessionID, currentRefreshID, newAccessID, newRefreshID string, accessExpiresAt, refreshExpiresAt time.Time) error {
	const query = `
		UPDATE sessions
		SET access_jti = $3, refresh_jti = $4, access_expires_at = $5, refresh_expires_at = $6
		WHERE id = $1 AND refresh_jti = $2 AND is_active
	`
	tag, err := r.pool.Exec(ctx, query, sessionID, currentRefreshID, newAccessID, newRefreshID, accessExpiresAt, refreshExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSessionInvalid
	}
	return nil
}

// Deactivate flips the active flag for one session.
func (r *PGRepository) Deactivate(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, sessionID)
	return err
}

// DeactivateAllForUser flips the active flag on every session of a user.
func (r *PGRepository) DeactivateAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	return err
}

// DeactivateExpired retires sessions whose refresh window has elapsed.
// Correctness does not depend on this: verification checks expiry lazily.
func (r *PGRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE is_active AND refresh_expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg any) (*Session, error) {
	var session Session
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&session.ID,
		&session.UserID,
		&session.AccessID,
		&session.RefreshID,
		&session.AccessExpiresAt,
		&session.RefreshExpiresAt,
		&session.IsActive,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

var _ Repository = (*PGRepository)(nil)
