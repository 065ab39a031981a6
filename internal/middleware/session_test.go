package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionauth/sessionauth-go/internal/crypto"
	"github.com/sessionauth/sessionauth-go/internal/session"
)

const testSecret = "test-secret"

// captureSession runs a request through Session and returns the context the
// handler saw.
func captureSession(t *testing.T, secure bool, req *http.Request, fn func(sc *session.Context)) *httptest.ResponseRecorder {
	t.Helper()
	var seen *session.Context
	h := Session(testSecret, secure)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
		if fn != nil {
			fn(seen)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.NotNil(t, seen)
	return rec
}

func TestSession_NoCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	captureSession(t, false, req, func(sc *session.Context) {
		assert.Empty(t, sc.Token())
	})
}

func TestSession_ValidCookie(t *testing.T) {
	value, err := crypto.SignSessionCookie("tok123", testSecret, time.Now().Add(time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: value})

	captureSession(t, false, req, func(sc *session.Context) {
		assert.Equal(t, "tok123", sc.Token())
	})
}

func TestSession_InvalidCookiesAreIgnored(t *testing.T) {
	wrongSecret, err := crypto.SignSessionCookie("tok123", "other-secret", time.Now().Add(time.Hour))
	require.NoError(t, err)
	expired, err := crypto.SignSessionCookie("tok123", testSecret, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{name: "garbage", value: "not-a-jwt"},
		{name: "wrong secret", value: wrongSecret},
		{name: "expired", value: expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: tt.value})

			captureSession(t, false, req, func(sc *session.Context) {
				assert.Empty(t, sc.Token())
			})
		})
	}
}

func TestCookieJar_SetSession(t *testing.T) {
	rec := httptest.NewRecorder()
	jar := &cookieJar{w: rec, secret: testSecret, secure: true}
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	require.NoError(t, jar.SetSession("tok123", expiresAt))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, session.CookieName, c.Name)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.True(t, expiresAt.Equal(c.Expires))

	token, err := crypto.ParseSessionCookie(c.Value, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "tok123", token)
}

func TestCookieJar_ClearSession(t *testing.T) {
	rec := httptest.NewRecorder()
	jar := &cookieJar{w: rec, secret: testSecret}

	jar.ClearSession()

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.False(t, cookies[0].Secure)
}

func TestSessionFromContext_Fallback(t *testing.T) {
	sc := SessionFromContext(context.Background())
	require.NotNil(t, sc)
	assert.Empty(t, sc.Token())
}
