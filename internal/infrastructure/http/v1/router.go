// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"stockwise/internal/core/security"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/operatingunit"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/infrastructure/http/v1/dto"
	"stockwise/internal/infrastructure/http/v1/handlers"
	"stockwise/internal/infrastructure/http/v1/middleware"
	"stockwise/pkg/logger"
)

// LocalOperatorID identifies requests when authentication is disabled.
const LocalOperatorID = "local-operator"

// RouterConfig holds everything the API needs. Optional parts are nil.
type RouterConfig struct {
	ServiceName string
	Logger      *logger.Logger

	// TokenValidator enables bearer authentication; nil runs every request
	// as an admin local operator.
	TokenValidator middleware.TokenValidator
	Authorizer     security.Authorizer

	// Idempotency enables X-Idempotency-Key handling on mutating routes.
	Idempotency middleware.IdempotencyStore

	ObserveHTTP    func(route, method string, status int, took time.Duration)
	MetricsHandler http.Handler
	HealthChecks   map[string]handlers.Pinger

	Units          handlers.CatalogService[*uom.UnitOfMeasure]
	Conversions    handlers.ConversionService
	Converter      handlers.QuantityConverter
	OperatingUnits handlers.CatalogService[*operatingunit.OperatingUnit]
	Locations      handlers.LocationService
	Items          handlers.CatalogService[*item.Item]
	Variants       handlers.VariantService
	Movements      handlers.MovementProcessor
	Stock          handlers.StockReader
	Audit          handlers.AuditReader
}

// NewRouter builds the gin engine.
//
// Middleware order: tracing and logging see the final status, the error
// handler renders errors raised by recovery, auth and handlers.
func NewRouter(cfg RouterConfig) *gin.Engine {
	dto.RegisterValidators()

	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = security.AllowAll{}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stockwise"
	}

	router := gin.New()
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.ObserveHTTP != nil {
		router.Use(middleware.Metrics(cfg.ObserveHTTP))
	}
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	health := handlers.NewHealthHandler(cfg.HealthChecks)
	router.GET("/health", health.Ready)
	router.GET("/health/live", health.Live)
	router.GET("/health/ready", health.Ready)
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := router.Group("/api/v1")
	if cfg.TokenValidator != nil {
		api.Use(middleware.Auth(cfg.TokenValidator))
	} else {
		api.Use(middleware.Anonymous(LocalOperatorID))
	}

	idem := func(c *gin.Context) { c.Next() }
	if cfg.Idempotency != nil {
		idem = middleware.Idempotency(cfg.Idempotency)
	}

	registerCatalogRoutes(api, cfg, idem)
	registerLedgerRoutes(api, cfg, idem)

	if cfg.Audit != nil {
		audit := handlers.NewAuditHandler(handlers.NewBaseHandler(), cfg.Audit)
		api.GET("/audit/:entity_type/:id",
			middleware.RequirePermission(cfg.Authorizer, security.PermissionAuditRead, middleware.PathResource("audit")),
			audit.History)
	}

	return router
}

func registerCatalogRoutes(api *gin.RouterGroup, cfg RouterConfig, idem gin.HandlerFunc) {
	base := handlers.NewBaseHandler()
	authz := cfg.Authorizer
	read := func(kind string) gin.HandlerFunc {
		return middleware.RequirePermission(authz, security.PermissionCatalogRead, middleware.PathResource(kind))
	}
	write := func(kind string) gin.HandlerFunc {
		return middleware.RequirePermission(authz, security.PermissionCatalogWrite, middleware.PathResource(kind))
	}

	if cfg.Units != nil {
		RegisterCatalogRoutes(api.Group("/uoms"), handlers.NewUOMHandler(base, cfg.Units), authz, idem, "uom")
	}
	conv := handlers.NewConversionHandler(base, cfg.Conversions, cfg.Converter)
	if cfg.Conversions != nil {
		g := api.Group("/uom-conversions")
		g.GET("", read("uom_conversion"), conv.List)
		g.POST("", write("uom_conversion"), idem, conv.Create)
		g.GET("/:id", read("uom_conversion"), conv.Get)
		g.PATCH("/:id", write("uom_conversion"), idem, conv.Update)
	}
	if cfg.Converter != nil {
		api.GET("/uom-convert", read("uom_conversion"), conv.Convert)
	}
	if cfg.OperatingUnits != nil {
		ous := api.Group("/operating-units")
		RegisterCatalogRoutes(ous, handlers.NewOperatingUnitHandler(base, cfg.OperatingUnits), authz, idem, "operating_unit")
		if cfg.Locations != nil {
			locs := handlers.NewLocationHandler(base, cfg.Locations)
			ous.GET("/:id/primary-location", read("operating_unit"), locs.GetPrimary)
		}
	}
	if cfg.Locations != nil {
		RegisterCatalogRoutes(api.Group("/locations"), handlers.NewLocationHandler(base, cfg.Locations), authz, idem, "inventory_location")
	}
	if cfg.Items != nil {
		items := api.Group("/items")
		RegisterCatalogRoutes(items, handlers.NewItemHandler(base, cfg.Items), authz, idem, "item")
		if cfg.Variants != nil {
			variants := handlers.NewVariantHandler(base, cfg.Variants)
			items.GET("/:id/variants", read("item"), variants.ListByItem)
		}
	}
	if cfg.Variants != nil {
		RegisterCatalogRoutes(api.Group("/variants"), handlers.NewVariantHandler(base, cfg.Variants), authz, idem, "item_variant")
	}
}

func registerLedgerRoutes(api *gin.RouterGroup, cfg RouterConfig, idem gin.HandlerFunc) {
	base := handlers.NewBaseHandler()
	authz := cfg.Authorizer
	perm := func(p security.Permission, res middleware.ResourceFunc) gin.HandlerFunc {
		return middleware.RequirePermission(authz, p, res)
	}
	movementRes := middleware.PathResource("stock_movement")

	if cfg.Movements != nil {
		h := handlers.NewMovementHandler(base, cfg.Movements)
		g := api.Group("/movements")
		g.GET("", perm(security.PermissionMovementRead, locationQueryResource("stock_movement")), h.List)
		g.POST("", perm(security.PermissionMovementCreate, nil), idem, h.CreateDraft)
		g.POST("/register", perm(security.PermissionMovementPost, nil), idem, h.Register)
		g.GET("/:id", perm(security.PermissionMovementRead, movementRes), h.Get)
		g.POST("/:id/post", perm(security.PermissionMovementPost, movementRes), idem, h.Post)
		g.POST("/:id/cancel", perm(security.PermissionMovementCancel, movementRes), idem, h.Cancel)
		g.POST("/:id/reverse", perm(security.PermissionMovementReverse, movementRes), idem, h.Reverse)

		r := api.Group("/stock")
		r.POST("/reserve", perm(security.PermissionStockReserve, nil), idem, h.Reserve)
		r.POST("/release", perm(security.PermissionStockReserve, nil), idem, h.Release)
	}

	if cfg.Stock != nil {
		h := handlers.NewStockHandler(base, cfg.Stock)
		g := api.Group("/stock")
		read := perm(security.PermissionStockRead, locationQueryResource("stock"))
		g.GET("", read, h.List)
		g.GET("/summary", read, h.Summary)
		g.GET("/:location_id/:variant_id", perm(security.PermissionStockRead, func(c *gin.Context) security.Resource {
			return security.Resource{Kind: "stock", LocationID: c.Param("location_id")}
		}), h.Get)
	}
}
