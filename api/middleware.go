package api

import (
	"net/http"
	"strings"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

// CallerKey holds the authenticated domain.Party in the gin context.
const CallerKey = "caller"

type Authenticator interface {
	Authenticate(token string) (domain.Party, error)
}

// RequireCaller rejects requests without a valid bearer token and stores
// the verified party for the handlers.
func RequireCaller(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: "Authorization header must be: Bearer <token>",
				Code:  "missing_token",
			})
			return
		}

		party, err := auth.Authenticate(strings.TrimSpace(parts[1]))
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid token", Code: "invalid_token"})
			return
		}
		c.Set(CallerKey, party)
		c.Next()
	}
}

func callerFrom(c *gin.Context) (domain.Party, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return domain.Party{}, false
	}
	party, ok := v.(domain.Party)
	return party, ok
}

// mustCaller writes 401 and returns false when no caller was set.
func mustCaller(c *gin.Context) (domain.Party, bool) {
	party, ok := callerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Code: "missing_token"})
	}
	return party, ok
}
