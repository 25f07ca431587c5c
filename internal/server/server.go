// Package server contains HTTP and WebSocket handlers for the moderation dashboard API.
package server

import (
	"context"
	"log/slog"
	"time"

	"chatwarden/internal/blob"
	"chatwarden/internal/bootstrap"
	"chatwarden/internal/config"
	"chatwarden/internal/database"
	"chatwarden/internal/middleware"
	"chatwarden/internal/models"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	rt             *bootstrap.Runtime
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
}

// NewServer creates a server over an already wired runtime.
func NewServer(cfg *config.Config, rt *bootstrap.Runtime) *Server {
	middleware.InitMiddleware(cfg)
	s := &Server{
		config:         cfg,
		rt:             rt,
		promMiddleware: middleware.InitMetrics("chatwarden-api"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:   "chatwarden",
		BodyLimit: blob.MaxSize + 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)
	return s
}

// App exposes the Fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Ingest-Token, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Path() == "/api/ingest/messages"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Live feed. Browsers cannot set headers on upgrades, so the token may come as ?token=.
	app.Get("/ws/notifications", middleware.WebSocketAuthRequired, s.NotificationsFeed())

	api := app.Group("/api")

	// Service ingestion, guarded by a shared token instead of a user JWT.
	ingest := api.Group("/ingest", middleware.IngestTokenRequired)
	ingest.Post("/messages", s.IngestMessage)
	ingest.Post("/images", s.UploadImage)
	ingest.Post("/audios", s.UploadAudio)

	protected := api.Group("", middleware.AuthRequired, middleware.ContextMiddleware())

	me := protected.Group("/me")
	me.Get("/chats", s.GetMyChats)
	me.Get("/policies", s.GetMyPolicies)
	me.Put("/policies/:category", s.SetMyPolicy)
	me.Post("/catch-up", middleware.RateLimit(s.rt.Redis, 10, time.Minute, "catch_up"), s.CatchUp)

	// Define specific /:id/:resource routes BEFORE generic /:id route
	chats := protected.Group("/chats")
	chats.Get("/:id/stats", s.GetChatStats)
	chats.Get("/:id/rules", s.GetChatRules)
	chats.Post("/:id/rules", s.CreateRule)
	chats.Get("/:id/moderators", s.GetChatModerators)
	chats.Put("/:id/moderators/:userId", s.SetChatModerator)
	chats.Get("/:id/decisions", s.GetChatDecisions)
	chats.Get("/:id/features", s.GetChatFeatures)
	chats.Put("/:id/activation", s.SetChatActivation)
	chats.Get("/:id", s.GetChat)

	rules := protected.Group("/rules")
	rules.Get("/:ruleId/violations", s.GetRuleViolations)
	rules.Put("/:ruleId/activation", s.SetRuleActivation)
	rules.Patch("/:ruleId", s.UpdateRule)
	rules.Get("/:ruleId", s.GetRule)

	violations := protected.Group("/violations")
	violations.Get("/search", middleware.RateLimit(s.rt.Redis, 30, time.Minute, "search"), s.SearchViolations)
	violations.Post("/:id/decisions", middleware.RateLimit(s.rt.Redis, 60, time.Minute, "decide"), s.RecordDecision)
	violations.Get("/:id", s.GetViolation)

	blobs := protected.Group("/blobs")
	blobs.Get("/images/:uuid", s.GetImage)
	blobs.Get("/audios/:uuid", s.GetAudio)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports the database and Redis. Redis is optional, so only
// the database decides readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.rt.DB); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.rt.Redis != nil {
		redisStatus = "healthy"
		if err := s.rt.Redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
			"telegram": !s.rt.Telegram.DryRun(),
		},
		"pending_notifications": s.rt.Dispatcher.Pending(),
		"time":                  time.Now(),
	})
}

// Listen serves HTTP until Shutdown is called.
func (s *Server) Listen() error {
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
