// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-triage-backend/internal/advisory"
	"github.com/tbourn/go-triage-backend/internal/config"
	"github.com/tbourn/go-triage-backend/internal/domain"
	"github.com/tbourn/go-triage-backend/internal/http/handlers"
	"github.com/tbourn/go-triage-backend/internal/http/middleware"
	"github.com/tbourn/go-triage-backend/internal/ratelimit"
	"github.com/tbourn/go-triage-backend/internal/repo"
	"github.com/tbourn/go-triage-backend/internal/services"
	"github.com/tbourn/go-triage-backend/internal/triage"
)

// triageRepoShim adapts the repository free functions to the
// services.TriageRepo interface expected by the TriageService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type triageRepoShim struct{}

func (triageRepoShim) CreateTriageLog(ctx context.Context, db *gorm.DB, userID string, memberID *uint, payload, result string) (*domain.TriageLog, error) {
	return repo.CreateTriageLog(ctx, db, userID, memberID, payload, result)
}

func (triageRepoShim) CountTriageLogs(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountTriageLogs(ctx, db, userID)
}

func (triageRepoShim) ListTriageLogsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.TriageLog, error) {
	return repo.ListTriageLogsPage(ctx, db, userID, offset, limit)
}

func (triageRepoShim) GetFamilyMember(ctx context.Context, db *gorm.DB, userID string, memberID uint) (*domain.FamilyMember, error) {
	return repo.GetFamilyMember(ctx, db, userID, memberID)
}

func (triageRepoShim) TriageStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return repo.TriageStats(ctx, db, userID)
}

// shareRepoShim adapts the repository free functions to the
// services.SharePassRepo interface expected by the SharePassService.
type shareRepoShim struct{}

func (shareRepoShim) CreateSharePass(ctx context.Context, db *gorm.DB, userID string, memberID *uint, code string, expiresAt time.Time) (*domain.SharePass, error) {
	return repo.CreateSharePass(ctx, db, userID, memberID, code, expiresAt)
}

func (shareRepoShim) GetSharePass(ctx context.Context, db *gorm.DB, code string) (*domain.SharePass, error) {
	return repo.GetSharePass(ctx, db, code)
}

func (shareRepoShim) ConsumeSharePass(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	return repo.ConsumeSharePass(ctx, db, code)
}

func (shareRepoShim) CountSharePasses(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountSharePasses(ctx, db, userID)
}

func (shareRepoShim) ListSharePassesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.SharePass, error) {
	return repo.ListSharePassesPage(ctx, db, userID, offset, limit)
}

func (shareRepoShim) CreateAccessLog(ctx context.Context, db *gorm.DB, pass *domain.SharePass, viewerLabel string) (*domain.ShareAccessLog, error) {
	return repo.CreateAccessLog(ctx, db, pass, viewerLabel)
}

func (shareRepoShim) HasAccessLog(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	return repo.HasAccessLog(ctx, db, code)
}

func (shareRepoShim) ListAccessLogs(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.ShareAccessLog, error) {
	return repo.ListAccessLogs(ctx, db, userID, limit)
}

func (shareRepoShim) GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	return repo.GetProfile(ctx, db, userID)
}

func (shareRepoShim) GetFamilyMember(ctx context.Context, db *gorm.DB, userID string, memberID uint) (*domain.FamilyMember, error) {
	return repo.GetFamilyMember(ctx, db, userID, memberID)
}

func (shareRepoShim) ListRecentTriageLogs(ctx context.Context, db *gorm.DB, userID string, memberID *uint, limit int) ([]domain.TriageLog, error) {
	return repo.ListRecentTriageLogs(ctx, db, userID, memberID, limit)
}

func (shareRepoShim) ListMedicalRecords(ctx context.Context, db *gorm.DB, userID string, memberID *uint, limit int) ([]domain.MedicalRecord, error) {
	return repo.ListMedicalRecords(ctx, db, userID, memberID, limit)
}

func (shareRepoShim) GetMedicalRecord(ctx context.Context, db *gorm.DB, userID, recordID string) (*domain.MedicalRecord, error) {
	return repo.GetMedicalRecord(ctx, db, userID, recordID)
}

func (shareRepoShim) GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, userID, scope, key, now)
}

func (shareRepoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, passCode string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, userID, scope, key, passCode, status, ttl)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, compression, CORS and security headers, health and metrics
// endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with pass-code scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging (pass codes scrubbed from raw paths)
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			Scope:  "share_pass",
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers. Responses here carry health data, so caches are told
	// not to store them (HSTS only when enabled and request is HTTPS).
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (off by default)
	if cfg.SwaggerEnabled {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/advisory
	provider := advisory.NewProvider(advisory.Config{
		Selection:      advisory.Selection(cfg.Advisory.Selection),
		OpenAIKey:      cfg.Advisory.OpenAIKey,
		OpenAIModel:    cfg.Advisory.OpenAIModel,
		GeminiKey:      cfg.Advisory.GeminiKey,
		GeminiEndpoint: cfg.Advisory.GeminiEndpoint,
	})
	orch := advisory.NewOrchestrator(triage.NewEngine(), provider)
	orch.Timeout = cfg.Advisory.Timeout

	limiter := ratelimit.New()

	triageSvc := services.NewTriageService(db, triageRepoShim{}, orch, limiter)
	triageSvc.MaxPerWindow = cfg.RateLimits.TriageMax
	triageSvc.Window = cfg.RateLimits.TriageWindow

	shareSvc := services.NewSharePassService(db, shareRepoShim{}, limiter)
	shareSvc.TTL = cfg.SharePassTTL
	shareSvc.MaxPerWindow = cfg.RateLimits.ShareMax
	shareSvc.Window = cfg.RateLimits.ShareWindow
	shareSvc.IdempotencyTTL = cfg.IdempotencyTTL

	assistSvc := services.NewAssistantService(orch, limiter)
	assistSvc.MaxPerWindow = cfg.RateLimits.ChatMax
	assistSvc.Window = cfg.RateLimits.ChatWindow

	h := handlers.New(triageSvc, shareSvc, assistSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Redemption endpoints are unauthenticated: the code is the credential.
		api.GET("/share-passes/:code", h.RedeemSharePass)
		api.GET("/share-passes/:code/records/:recordId", h.FetchSharedRecord)

		// Assistant accepts anonymous callers (rate limited by IP).
		api.POST("/assistant", middleware.OptionalAuth(cfg.JWTSecret), h.Assist)

		// Everything else requires a verified identity.
		auth := api.Group("", middleware.Auth(cfg.JWTSecret))
		{
			auth.POST("/triage", h.RunTriage)
			auth.GET("/triage/history", h.TriageHistory)

			auth.POST("/share-passes", h.IssueSharePass)
			auth.GET("/share-passes", h.SharePassHistory)
			auth.GET("/share-access-logs", h.ShareAccessLogs)
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
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
