package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sessionauth/sessionauth-go/internal/model"
)

// SessionRepository handles session persistence on MySQL.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, token_hash, user_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID.String(), s.TokenHash, s.UserID, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", s.UserID).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by the hash of its client token.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	var (
		idStr string
		s     model.Session
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token_hash, user_id, expires_at, created_at FROM sessions WHERE token_hash = ?`,
		tokenHash,
	).Scan(&idStr, &s.TokenHash, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrSessionNotFound)
		}
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}
	s.ID = id

	return &s, nil
}

// DeleteByTokenHash removes the session with the given token hash.
// Returns ErrSessionNotFound if nothing was deleted.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "rows affected").
			Wrap(err)
	}

	if rowsAffected == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(ErrSessionNotFound)
	}

	return nil
}

// DeleteExpired removes all sessions that expired at or before now and
// returns how many were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").Wrap(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "rows affected").
			Wrap(err)
	}

	return n, nil
}
