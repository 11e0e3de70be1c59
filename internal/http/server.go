// README: API gateway; registers routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"spaeti/internal/auth"
	"spaeti/internal/http/handlers"
	"spaeti/internal/http/middleware"
	"spaeti/internal/modules/catalog"
	"spaeti/internal/modules/order"
	"spaeti/internal/modules/realtime"
	"spaeti/internal/modules/support"
	"spaeti/internal/modules/tracking"
)

type ServerDeps struct {
	Catalog              *catalog.Store
	Order                *order.Service
	Tracking             *tracking.Service
	Support              *support.Service
	Bus                  *realtime.Bus
	JWTSecret            string
	PaymentWebhookSecret string
	Logger               zerolog.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Logging(s.deps.Logger))
	r.Use(middleware.Recovery(s.deps.Logger))

	catalogHandler := handlers.NewCatalogHandler(s.deps.Catalog)
	orderHandler := handlers.NewOrderHandler(s.deps.Order)
	driverHandler := handlers.NewDriverHandler(s.deps.Order)
	trackingHandler := handlers.NewTrackingHandler(s.deps.Tracking)
	supportHandler := handlers.NewSupportHandler(s.deps.Support)
	paymentHandler := handlers.NewPaymentHandler(s.deps.Order, s.deps.PaymentWebhookSecret)
	eventsHandler := handlers.NewEventsHandler(s.deps.Bus, s.deps.Order, s.deps.Tracking, s.deps.JWTSecret)

	// Public: storefront catalog, tracking-token and email-gated access,
	// payment callback.
	r.GET("/api/products", catalogHandler.List)
	r.GET("/api/products/:id", catalogHandler.Get)
	r.POST("/api/track", trackingHandler.Track)
	r.POST("/api/track/cancel", trackingHandler.Cancel)
	r.POST("/api/track/review", trackingHandler.Review)
	r.POST("/api/payments/callback", paymentHandler.Callback)

	// SSE: authorizes per request (session or tracking token), so it sits
	// outside the session-only group.
	r.GET("/api/orders/:id/events", eventsHandler.OrderEvents)

	authed := r.Group("/", middleware.Auth(s.deps.JWTSecret))
	{
		customer := authed.Group("/", middleware.RequireRole(auth.RoleCustomer, auth.RoleAdmin))
		customer.POST("/api/orders", orderHandler.Create)
		customer.POST("/api/support/tickets", supportHandler.Create)

		authed.GET("/api/orders/:id", orderHandler.Get)
		authed.GET("/api/orders/:id/timeline", orderHandler.Timeline)
		authed.POST("/api/orders/:id/cancel", orderHandler.Cancel)
		authed.POST("/api/orders/:id/status", orderHandler.SetStatus)

		driver := authed.Group("/", middleware.RequireRole(auth.RoleDriver, auth.RoleAdmin))
		driver.GET("/api/drivers/orders", driverHandler.ListAvailable)
		driver.POST("/api/drivers/orders/:id/claim", driverHandler.Claim)
		driver.POST("/api/orders/:id/items/:itemID/picked", driverHandler.MarkItemPicked)

		staff := authed.Group("/", middleware.RequireRole(auth.RoleSupport, auth.RoleAdmin))
		staff.POST("/api/support/tickets/:id/close", supportHandler.Close)
		staff.POST("/api/support/tickets/:id/escalate", supportHandler.Escalate)

		admin := authed.Group("/", middleware.RequireRole(auth.RoleAdmin))
		admin.GET("/api/admin/events", eventsHandler.GlobalEvents)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
