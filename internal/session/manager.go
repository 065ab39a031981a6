// Package session binds opaque session tokens to user ids.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sessionauth/sessionauth-go/internal/crypto"
	"github.com/sessionauth/sessionauth-go/internal/logging"
	"github.com/sessionauth/sessionauth-go/internal/model"
	"github.com/sessionauth/sessionauth-go/internal/repository"
)

// Store persists session records.
type Store interface {
	Create(ctx context.Context, s *model.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Manager creates, reads and destroys sessions. It holds no per-request
// state; everything request-scoped lives in the Context passed to each call.
type Manager struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	onSweep func(removed int64)
}

// NewManager creates a Manager issuing sessions that live for ttl.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// OnSweep registers fn to receive the count of every successful sweep run
// by RunSweeper.
func (m *Manager) OnSweep(fn func(removed int64)) {
	m.onSweep = fn
}

// Create binds a new session for userID to the request. A session already
// bound to the request is removed first.
func (m *Manager) Create(ctx context.Context, sc *Context, userID int64) error {
	if sc.token != "" {
		err := m.store.DeleteByTokenHash(ctx, crypto.HashSessionToken(sc.token))
		if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			return oops.Code("SESSION_REPLACE_FAILED").
				With("user_id", userID).
				Wrap(err)
		}
		sc.token = ""
	}

	token, tokenHash, err := crypto.GenerateSessionToken()
	if err != nil {
		return err
	}

	now := m.now().UTC()
	s := &model.Session{
		ID:        ulid.Make(),
		TokenHash: tokenHash,
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("user_id", userID).
			Wrap(err)
	}

	if err := sc.setCookie(token, s.ExpiresAt); err != nil {
		return oops.Code("SESSION_COOKIE_FAILED").
			With("session_id", s.ID.String()).
			Wrap(err)
	}
	sc.token = token

	return nil
}

// CurrentUserID returns the user bound to the request's session. ok is false
// when the request has no session, or its session is unknown or expired.
func (m *Manager) CurrentUserID(ctx context.Context, sc *Context) (userID int64, ok bool, err error) {
	if sc.token == "" {
		return 0, false, nil
	}

	s, err := m.store.GetByTokenHash(ctx, crypto.HashSessionToken(sc.token))
	if errors.Is(err, repository.ErrSessionNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("SESSION_LOOKUP_FAILED").Wrap(err)
	}

	if s.IsExpiredAt(m.now()) {
		return 0, false, nil
	}

	return s.UserID, true, nil
}

// Destroy removes the request's session and clears the cookie, whether or
// not a session existed. It returns false only if the store failed to
// delete an existing session.
func (m *Manager) Destroy(ctx context.Context, sc *Context) bool {
	ok := true

	if sc.token != "" {
		err := m.store.DeleteByTokenHash(ctx, crypto.HashSessionToken(sc.token))
		if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			logging.LogError(slog.Default(), "session destroy failed", err)
			ok = false
		}
	}

	sc.token = ""
	sc.clearCookie()

	return ok
}

// Sweep deletes every expired session and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				logging.LogError(slog.Default(), "session sweep failed", err)
				continue
			}
			if m.onSweep != nil {
				m.onSweep(n)
			}
			if n > 0 {
				slog.Info("expired sessions removed", "count", n)
			}
		}
	}
}
