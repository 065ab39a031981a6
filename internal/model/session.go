package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Session represents a server-side session record. Only the SHA-256 hash of
// the client token is stored.
type Session struct {
	ID        ulid.ULID
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the session is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}
