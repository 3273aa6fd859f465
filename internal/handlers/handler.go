package handlers

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"repair_tracker/internal/logger"
	"repair_tracker/internal/metrics"
	"repair_tracker/internal/registry"
	"repair_tracker/internal/service"
)

// Default limits applied when Options leaves them zero.
const (
	defaultCommandRate  = 20
	defaultCommandBurst = 40
	defaultHTTPRate     = 50
	defaultHTTPBurst    = 100
)

// Options tunes the rate limits of the websocket and HTTP surfaces.
type Options struct {
	CommandRate  rate.Limit // websocket commands per second, per connection
	CommandBurst int
	HTTPRate     rate.Limit // API requests per second, per client IP
	HTTPBurst    int
}

func (o Options) withDefaults() Options {
	if o.CommandRate <= 0 {
		o.CommandRate = defaultCommandRate
	}
	if o.CommandBurst <= 0 {
		o.CommandBurst = defaultCommandBurst
	}
	if o.HTTPRate <= 0 {
		o.HTTPRate = defaultHTTPRate
	}
	if o.HTTPBurst <= 0 {
		o.HTTPBurst = defaultHTTPBurst
	}
	return o
}

// Handler wires the HTTP and websocket layers to services, the connection
// registry and logging.
type Handler struct {
	services *service.Service
	registry *registry.Registry
	log      *logger.Logger
	opts     Options
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, reg *registry.Registry, log *logger.Logger, opts Options) *Handler {
	return &Handler{services: services, registry: reg, log: log, opts: opts.withDefaults()}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.GinMiddleware())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/health", h.health)

	h.registerAPIRoutes(router)

	// websocket upgrade on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api", rateLimiter(h.opts.HTTPRate, h.opts.HTTPBurst))
	{
		api.GET("/health", h.health)
		h.registerCatalogRoutes(api)
		h.registerOrderRoutes(api)
		h.registerUnitRoutes(api)
	}
}

func (h *Handler) registerCatalogRoutes(api *gin.RouterGroup) {
	api.GET("/assignees", h.listAssignees)
	api.GET("/statuses", h.listStatuses)
	api.GET("/models", h.listUnitModels)
}

func (h *Handler) registerOrderRoutes(api *gin.RouterGroup) {
	orders := api.Group("/orders")
	{
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
	}
}

func (h *Handler) registerUnitRoutes(api *gin.RouterGroup) {
	units := api.Group("/units")
	{
		// Query example: ?from=2025-08-01&to=2025-08-31&type=status
		units.GET("/:id/events", h.getUnitEvents)
	}
}
