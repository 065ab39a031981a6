package session

import "time"

// CookieName is the name of the client-side session cookie.
const CookieName = "qid"

// Cookies writes the session cookie on the response.
type Cookies interface {
	// SetSession stores token in the session cookie until expiresAt.
	SetSession(token string, expiresAt time.Time) error
	// ClearSession tells the client to drop the session cookie.
	ClearSession()
}

// Context is the session state of one request. It is created by the HTTP
// layer for every request and passed explicitly to each operation; it is
// not safe for concurrent use.
type Context struct {
	token   string
	cookies Cookies
}

// NewContext creates a Context for a request that presented token (empty if
// the request carried no valid session cookie).
func NewContext(token string, cookies Cookies) *Context {
	return &Context{token: token, cookies: cookies}
}

// Token returns the session token currently bound to the request, or "".
func (c *Context) Token() string {
	return c.token
}

func (c *Context) setCookie(token string, expiresAt time.Time) error {
	if c.cookies == nil {
		return nil
	}
	return c.cookies.SetSession(token, expiresAt)
}

func (c *Context) clearCookie() {
	if c.cookies != nil {
		c.cookies.ClearSession()
	}
}
