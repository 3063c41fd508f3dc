package server

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	obscontext "github.com/smallbiznis/opensmile/internal/observability/context"
	"github.com/smallbiznis/opensmile/internal/ratelimit"
)

const (
	contextUserKey       = "user"
	contextPracticeIDKey = "practice_id"
)

// AuthRequired resolves the session cookie to a user. A session whose user
// row is gone is treated as unauthenticated.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.Token(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if principal == nil || principal.User == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user := principal.User
		ctx := authdomain.WithUser(c.Request.Context(), user)
		ctx = obscontext.WithActor(ctx, obscontext.ActorUser, user.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserKey, user)
		if user.PracticeID != nil {
			c.Set(contextPracticeIDKey, user.PracticeID.String())
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (*authdomain.User, bool) {
	if v, ok := c.Get(contextUserKey); ok {
		if user, ok := v.(*authdomain.User); ok && user != nil {
			return user, true
		}
	}
	return authdomain.UserFromContext(c.Request.Context())
}

// CSRFGuard rejects cross-origin writes. Requests without an Origin header
// (same-origin navigations, server-to-server calls) pass.
func CSRFGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "GET", "HEAD", "OPTIONS":
			c.Next()
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/webhooks/") {
			c.Next()
			return
		}

		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin == "" {
			c.Next()
			return
		}
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Host == "" || !strings.EqualFold(parsed.Host, c.Request.Host) {
			AbortWithError(c, ErrCSRF)
			return
		}
		c.Next()
	}
}

// RateLimit counts the request under class for the identity keyFn returns.
func (s *Server) RateLimit(class string, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := s.limiter.Allow(c.Request.Context(), class, keyFn(c))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			AbortWithError(c, &ratelimit.LimitedError{Decision: decision})
			return
		}
		c.Next()
	}
}

func clientIPKey(c *gin.Context) string {
	return forwardedIP(c)
}

func userKey(c *gin.Context) string {
	if user, ok := currentUser(c); ok {
		return user.ID.String()
	}
	return forwardedIP(c)
}

// forwardedIP returns the first X-Forwarded-For entry, or "unknown".
func forwardedIP(c *gin.Context) string {
	header := c.GetHeader("X-Forwarded-For")
	if header == "" {
		return "unknown"
	}
	first, _, _ := strings.Cut(header, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return "unknown"
	}
	return first
}
