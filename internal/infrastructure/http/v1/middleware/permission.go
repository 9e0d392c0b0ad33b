package middleware

import (
	"github.com/gin-gonic/gin"

	"stockwise/internal/core/apperror"
	appctx "stockwise/internal/core/context"
	"stockwise/internal/core/security"
)

// ResourceFunc describes the resource a request touches, for policy rules
// that look at ids or locations.
type ResourceFunc func(c *gin.Context) security.Resource

// RequirePermission asks authz whether the caller may perform perm.
// Admins skip the policy.
func RequirePermission(authz security.Authorizer, perm security.Permission, resource ResourceFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		user := appctx.GetUser(ctx)
		if user == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		if user.IsAdmin {
			c.Next()
			return
		}

		var res security.Resource
		if resource != nil {
			res = resource(c)
		}
		if err := authz.Authorize(ctx, perm, res); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// PathResource builds a resource of kind from the :id path parameter.
func PathResource(kind string) ResourceFunc {
	return func(c *gin.Context) security.Resource {
		return security.Resource{Kind: kind, ID: c.Param("id")}
	}
}
