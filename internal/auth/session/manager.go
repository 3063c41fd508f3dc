// Package session moves opaque session tokens between the auth service and
// the browser. Only the token travels in the cookie; its hash lives in the
// sessions table.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/config"
)

const CookieName = "_sid"

type Cookies struct {
	secure   bool
	sameSite http.SameSite
	clock    clock.Clock
}

func NewCookies(cfg config.Config, clk clock.Clock) *Cookies {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	sameSite := http.SameSiteLaxMode
	if cfg.AuthCookieSecure {
		sameSite = http.SameSiteStrictMode
	}
	return &Cookies{secure: cfg.AuthCookieSecure, sameSite: sameSite, clock: clk}
}

// Token returns the session token presented by the caller, if any.
func (m *Cookies) Token(c *gin.Context) (string, bool) {
	token, err := c.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Issue sets the cookie to live exactly as long as the session row.
func (m *Cookies) Issue(c *gin.Context, token string, expiresAt time.Time) {
	m.write(c, token, max(int(expiresAt.Sub(m.clock.Now())/time.Second), 0))
}

func (m *Cookies) Clear(c *gin.Context) {
	m.write(c, "", -1)
}

func (m *Cookies) write(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(m.sameSite)
	c.SetCookie(CookieName, value, maxAge, "/", "", m.secure, true)
}
