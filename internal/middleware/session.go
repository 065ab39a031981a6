package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sessionauth/sessionauth-go/internal/crypto"
	"github.com/sessionauth/sessionauth-go/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

// cookieJar writes the signed session cookie for one response.
type cookieJar struct {
	w      http.ResponseWriter
	secret string
	secure bool
}

func (j *cookieJar) SetSession(token string, expiresAt time.Time) error {
	value, err := crypto.SignSessionCookie(token, j.secret, expiresAt)
	if err != nil {
		return err
	}

	http.SetCookie(j.w, &http.Cookie{
		Name:     session.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (j *cookieJar) ClearSession() {
	http.SetCookie(j.w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Session returns middleware that binds a session.Context to every request.
// A missing, forged or expired cookie yields a context with no session.
func Session(secret string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
				token, err = crypto.ParseSessionCookie(c.Value, secret)
				if err != nil {
					slog.DebugContext(r.Context(), "ignoring invalid session cookie", "error", err)
					token = ""
				}
			}

			sc := session.NewContext(token, &cookieJar{w: w, secret: secret, secure: secure})
			ctx := context.WithValue(r.Context(), sessionKey, sc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the request's session context. Requests that
// did not pass through Session get an empty context that writes no cookies.
func SessionFromContext(ctx context.Context) *session.Context {
	if sc, ok := ctx.Value(sessionKey).(*session.Context); ok {
		return sc
	}
	return session.NewContext("", nil)
}
