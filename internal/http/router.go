// Package httpapi wires the HTTP transport (Gin) to the conversation core,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
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

	"github.com/seohwan-dev/go-chatroom-backend/internal/chat"
	"github.com/seohwan-dev/go-chatroom-backend/internal/config"
	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
	"github.com/seohwan-dev/go-chatroom-backend/internal/http/handlers"
	"github.com/seohwan-dev/go-chatroom-backend/internal/http/middleware"
	"github.com/seohwan-dev/go-chatroom-backend/internal/repo"
)

// gatewayShim adapts the repository free functions to the chat.Gateway
// interface consumed by the conversation core. This keeps the core decoupled
// from the concrete repo package while reusing its functions, and translates
// repo sentinels into core sentinels at the boundary.
type gatewayShim struct {
	db *gorm.DB
}

// UpsertRoom proxies repo.UpsertRoom.
func (g gatewayShim) UpsertRoom(ctx context.Context, userID, name string) (*domain.Room, error) {
	return repo.UpsertRoom(ctx, g.db, userID, name)
}

// DeleteRoom proxies repo.DeleteRoomCascade, mapping ErrNotFound so a retried
// delete reads as already satisfied.
func (g gatewayShim) DeleteRoom(ctx context.Context, userID, name string) error {
	err := repo.DeleteRoomCascade(ctx, g.db, userID, name)
	if err == repo.ErrNotFound {
		return chat.ErrRoomNotFound
	}
	return err
}

// AppendExchange proxies repo.AppendExchange.
func (g gatewayShim) AppendExchange(ctx context.Context, ex *domain.Exchange) error {
	return repo.AppendExchange(ctx, g.db, ex)
}

// ListRooms proxies repo.ListRooms.
func (g gatewayShim) ListRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	return repo.ListRooms(ctx, g.db, userID)
}

// ListExchanges proxies repo.ListExchanges without a limit.
func (g gatewayShim) ListExchanges(ctx context.Context, roomID string) ([]domain.Exchange, error) {
	return repo.ListExchanges(ctx, g.db, roomID, 0)
}

// NewGateway returns the chat.Gateway backed by the given database handle.
func NewGateway(db *gorm.DB) chat.Gateway {
	return gatewayShim{db: db}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip compression
//  6. Metrics
//  7. Identity (X-User-ID into context)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, sessions *chat.Manager, ctrl *chat.Controller, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())

	// Global body size limit (1 MiB); prompts are capped far below this.
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Identity())

	// Replay detection must run before the rate limiter so replays bypass it.
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, room, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, room, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
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
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	sessionH := &handlers.SessionHandler{DB: db, Sessions: sessions}
	roomH := &handlers.RoomHandler{DB: db, Sessions: sessions}
	msgH := &handlers.MessageHandler{
		DB:             db,
		Sessions:       sessions,
		Controller:     ctrl,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Session
		api.POST("/login", sessionH.Login)
		api.POST("/logout", sessionH.Logout)

		// Rooms
		api.POST("/rooms", roomH.CreateRoom)
		api.GET("/rooms", roomH.ListRooms)
		api.DELETE("/rooms/:room", roomH.DeleteRoom)
		api.POST("/rooms/:room/clear", roomH.ClearRoom)

		// Messages
		api.POST("/rooms/:room/messages", msgH.Submit)
		api.GET("/rooms/:room/messages", msgH.List)
		api.GET("/rooms/:room/transcript", msgH.Transcript)

		// Usage and catalog
		api.GET("/usage", roomH.Usage)
		api.GET("/models", roomH.Models)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies error on downstream reads.
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
