package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"
	"github.com/tilepass/tilepass/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout
	v1 := app.Group("/v1")
	v1.Get("/styles", timeout.NewWithContext(ListStylesHandler(deps), 15*time.Second))
	v1.Post("/styles", timeout.NewWithContext(CreateStyleHandler(deps), 15*time.Second))
	v1.Get("/styles/near", timeout.NewWithContext(NearbyStylesHandler(deps), 15*time.Second))
	v1.Get("/styles/:id", timeout.NewWithContext(GetStyleHandler(deps), 15*time.Second))
	v1.Put("/styles/:id", timeout.NewWithContext(UpdateStyleHandler(deps), 15*time.Second))
	v1.Delete("/styles/:id", timeout.NewWithContext(DeleteStyleHandler(deps), 15*time.Second))
	v1.Get("/styles/:id/expression", timeout.NewWithContext(StyleExpressionHandler(deps), 15*time.Second))
	v1.Post("/styles/:id/evaluate", timeout.NewWithContext(EvaluateStyleHandler(deps), 15*time.Second))
	v1.Get("/styles/:id/tiles", timeout.NewWithContext(StyleTilesHandler(deps), 15*time.Second))
	v1.Get("/styles/:id/tiles/:source/:z/:x/:y", timeout.NewWithContext(StyleTileHandler(deps), 15*time.Second))
	v1.Post("/validate", timeout.NewWithContext(ValidateExpressionHandler(deps), 15*time.Second))
	v1.Get("/sources", timeout.NewWithContext(ListSourcesHandler(deps), 15*time.Second))
	v1.Post("/sources", timeout.NewWithContext(CreateSourceHandler(deps), 15*time.Second))
	v1.Get("/sources/:slug", timeout.NewWithContext(GetSourceHandler(deps), 15*time.Second))
	v1.Get("/styling/status", timeout.NewWithContext(StylingStatsHandler(deps), 15*time.Second))

	// Restyle walks every recent tile — give it more room
	v1.Post("/styles/:id/restyle", timeout.NewWithContext(RestyleStyleHandler(deps), 60*time.Second))

	// Enriched endpoints
	v1.Get("/styles/:id/stats", timeout.NewWithContext(StyleStatsHandler(deps), 15*time.Second))

	// Legacy evaluate endpoint (style named in the body)
	v1.Post("/evaluate", DeprecationMiddleware([]DeprecatedRoute{{
		Path:        "/v1/evaluate",
		SunsetDate:  time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		Alternative: "/v1/styles/{id}/evaluate",
	}}), timeout.NewWithContext(LegacyEvaluateHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
