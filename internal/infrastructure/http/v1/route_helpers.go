package v1

import (
	"github.com/gin-gonic/gin"

	"stockwise/internal/core/security"
	"stockwise/internal/infrastructure/http/v1/middleware"
)

// CatalogRouteHandler is implemented by every catalog handler.
type CatalogRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	SetActive(c *gin.Context)
}

// RegisterCatalogRoutes wires the standard catalog routes under group.
//
//	RegisterCatalogRoutes(api.Group("/uoms"), uomHandler, authz, idem, "uom")
func RegisterCatalogRoutes(group *gin.RouterGroup, handler CatalogRouteHandler, authz security.Authorizer, idem gin.HandlerFunc, kind string) {
	read := middleware.RequirePermission(authz, security.PermissionCatalogRead, middleware.PathResource(kind))
	write := middleware.RequirePermission(authz, security.PermissionCatalogWrite, middleware.PathResource(kind))

	group.GET("", read, handler.List)
	group.POST("", write, idem, handler.Create)
	group.GET("/:id", read, handler.Get)
	group.PATCH("/:id", write, idem, handler.Update)
	group.POST("/:id/active", write, idem, handler.SetActive)
}

// locationQueryResource exposes ?location_id to policy rules.
func locationQueryResource(kind string) middleware.ResourceFunc {
	return func(c *gin.Context) security.Resource {
		return security.Resource{Kind: kind, LocationID: c.Query("location_id")}
	}
}
