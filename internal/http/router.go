// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted access logs, panic recovery,
// metrics, compression, CORS, security headers, authentication,
// idempotency and rate limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/docs"
	"github.com/Em-Vi/MediScan/internal/ai"
	"github.com/Em-Vi/MediScan/internal/auth"
	"github.com/Em-Vi/MediScan/internal/blob"
	"github.com/Em-Vi/MediScan/internal/config"
	"github.com/Em-Vi/MediScan/internal/http/handlers"
	"github.com/Em-Vi/MediScan/internal/http/middleware"
	"github.com/Em-Vi/MediScan/internal/mailer"
	"github.com/Em-Vi/MediScan/internal/ocr"
	"github.com/Em-Vi/MediScan/internal/search"
	"github.com/Em-Vi/MediScan/internal/services"
)

// jsonBodyLimit caps request bodies outside the image routes.
const jsonBodyLimit = 1 << 20

// Collaborators are the external systems the services depend on.
type Collaborators struct {
	AI     ai.Generator
	OCR    ocr.Extractor
	Mailer mailer.Sender
	Blob   blob.Store
	Hasher auth.PasswordHasher
	Tokens auth.TokenIssuer
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and builds the services behind them.
//
// Global middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: access log with PII scrubbing, request-scoped logger
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Gzip (except /metrics)
//  7. CORS and security headers
//
// Authenticated routes then run RequireAuth, the Idempotency-Key validator
// and the rate limiter, in that order, so buckets are per user and replays
// bypass the limiter.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, col Collaborators) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Api-Key"},
	}))
	r.Use(middleware.Recovery())

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if serveLocalUploads(cfg.Blob) {
		r.Static(cfg.Blob.URLPrefix, cfg.Blob.UploadDir)
	}

	// Dependency injection: services ← repo/db/collaborators
	store := services.NewSessionStore(db)
	authSvc := &services.AuthService{
		DB:                  db,
		Hasher:              col.Hasher,
		Tokens:              col.Tokens,
		Mailer:              col.Mailer,
		FrontendURL:         cfg.Auth.FrontendURL,
		RequireVerification: cfg.Auth.RequireEmailVerification,
	}
	replay := handlers.NewReplayStore(db, cfg.IdempotencyTTL)
	h := handlers.New(handlers.Deps{
		Auth: authSvc,
		Conversations: &services.ConversationService{
			Store:          store,
			AI:             col.AI,
			MaxPromptRunes: cfg.MaxPromptRunes,
			TitleLocale:    language.English,
		},
		History: &services.HistoryService{
			Store:         store,
			SearchOptions: []search.Option{search.WithSnippetRunes(240)},
		},
		Prescriptions: &services.PrescriptionService{
			OCR:      col.OCR,
			AI:       col.AI,
			MaxBytes: cfg.Blob.MaxUploadBytes,
		},
		Uploads: &services.UploadService{
			DB:       db,
			Store:    col.Blob,
			MaxBytes: cfg.Blob.MaxUploadBytes,
		},
		Replay:         replay,
		MaxUploadBytes: cfg.Blob.MaxUploadBytes,
	})

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Public account routes, rate limited per client IP.
	public := api.Group("/auth", limitBody(jsonBodyLimit), rl.Handler())
	{
		public.POST("/signup", h.Signup)
		public.POST("/login", h.Login)
		public.POST("/verify", h.Verify)
		public.POST("/send-verification", h.SendVerification)
	}

	authed := api.Group("",
		middleware.RequireAuth(authSvc),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{
			Scope:  handlers.ChatScope,
			MaxLen: 200,
		}, replay.Exists),
		rl.Handler(),
	)

	js := authed.Group("", limitBody(jsonBodyLimit))
	{
		js.GET("/auth/me", h.Me)
		js.POST("/chat", h.Chat)

		js.GET("/history/:user_id", h.GetHistory)
		js.GET("/history/:user_id/:session_id", h.GetSessionMessages)
		js.PUT("/history/:user_id/:session_id/title", h.RenameSession)

		js.GET("/search/:user_id", h.Search)
	}

	// Multipart framing adds a little on top of the file itself.
	images := authed.Group("/image", limitBody(cfg.Blob.MaxUploadBytes+64<<10))
	{
		images.POST("/analyze", h.AnalyzeImage)
		images.POST("/ocr", h.ExtractImageText)
		images.POST("/upload", h.UploadImage)
		images.GET("/uploads", h.ListUploads)
	}
}

// corsMiddleware allows every origin when none are configured, otherwise
// echoes allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header, for health checks.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// serveLocalUploads reports whether the router should serve stored images.
// A root prefix would shadow every route, so it is never served.
func serveLocalUploads(b config.BlobConfig) bool {
	local := b.Backend == "local" || b.Backend == ""
	return local && b.URLPrefix != "" && b.URLPrefix != "/"
}

// limitBody caps the request body at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
