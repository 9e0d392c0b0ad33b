package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"stockwise/internal/core/apperror"
	appctx "stockwise/internal/core/context"
)

// ContextUserID is the gin key holding the authenticated user id.
const ContextUserID = "user_id"

// TokenValidator maps a bearer token to the caller.
type TokenValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth requires a valid bearer token and stores the caller in the request context.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			_ = c.Error(apperror.NewUnauthorized("missing or malformed authorization header"))
			c.Abort()
			return
		}

		user, err := validator.ValidateToken(token)
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token").WithCause(err))
			c.Abort()
			return
		}

		setUser(c, user)
		c.Next()
	}
}

// Anonymous marks every request as coming from a fixed local operator. It is
// installed instead of Auth when authentication is disabled.
func Anonymous(userID string) gin.HandlerFunc {
	user := &appctx.UserContext{UserID: userID, IsAdmin: true}
	return func(c *gin.Context) {
		setUser(c, user)
		c.Next()
	}
}

func setUser(c *gin.Context, user *appctx.UserContext) {
	c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
	c.Set(ContextUserID, user.UserID)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
