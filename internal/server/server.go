// Package server assembles the HTTP router and owns the listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/config"
	"taskify/backend/internal/database"
	"taskify/backend/internal/handlers"
	"taskify/backend/internal/middleware"
	"taskify/backend/internal/models"
	"taskify/backend/internal/monitoring"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/services"
	"taskify/backend/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps carries the infrastructure the server runs on. Redis and Jobs are
// optional: without Redis there is no login throttle, without Jobs no
// reminders are scheduled.
type Deps struct {
	DB    *database.DatabasePool
	Redis *cache.RedisStore
	Jobs  *worker.JobQueue
	Now   services.Clock
}

type Server struct {
	cfg     *config.Config
	router  *gin.Engine
	limiter *middleware.IPRateLimiter
}

func New(cfg *config.Config, deps Deps) *Server {
	users := repositories.NewUserRepository(deps.DB.DB)
	tasks := repositories.NewTaskRepository(deps.DB.DB)

	hasher := services.NewBcryptHasher(cfg.Auth.BCryptCost)
	codec := services.NewJWTCodec(cfg.Auth, deps.Now)

	var reminders services.ReminderScheduler
	if deps.Jobs != nil {
		reminders = worker.NewReminders(deps.Jobs)
	}

	var throttle handlers.LoginThrottle
	if deps.Redis != nil {
		throttle = cache.NewLoginThrottle(deps.Redis, cfg.LoginThrottle)
	}

	authService := services.NewAuthService(users, hasher, codec, deps.Now)
	userService := services.NewUserService(users, hasher, deps.Now)
	taskService := services.NewTaskService(tasks, reminders, deps.Now)

	s := &Server{cfg: cfg}
	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewIPRateLimiter(cfg.RateLimit)
	}

	metrics := monitoring.NewMetrics()
	health := monitoring.NewHealthChecker()
	health.Register("database", deps.DB.Health)
	extras := map[string]monitoring.Extra{"database": deps.DB.Stats}
	if deps.Redis != nil {
		health.Register("redis", deps.Redis.Health)
		extras["redis"] = deps.Redis.Stats
	}
	if deps.Jobs != nil {
		extras["jobs"] = func() map[string]interface{} {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			sizes, err := deps.Jobs.Sizes(ctx)
			if err != nil {
				return map[string]interface{}{"error": err.Error()}
			}
			out := make(map[string]interface{}, len(sizes))
			for k, v := range sizes {
				out[k] = v
			}
			return out
		}
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithLog())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
	router.Use(metrics.Middleware())

	router.GET("/health", health.HealthHandler())
	router.GET("/health/ready", health.ReadinessHandler())
	router.GET("/health/live", health.LivenessHandler())
	router.GET("/metrics", metrics.Handler(extras))

	authHandler := handlers.NewAuthHandler(authService, userService, throttle)
	userHandler := handlers.NewUserHandler(userService)
	taskHandler := handlers.NewTaskHandler(taskService)

	api := router.Group("/api/v1")
	if s.limiter != nil {
		api.Use(middleware.RateLimit(s.limiter))
	}

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", middleware.Protect(authService), authHandler.Logout)
	}

	usersGroup := api.Group("/users", middleware.Protect(authService))
	{
		usersGroup.GET("/me", userHandler.Me)
		usersGroup.GET("", middleware.AllowedTo(models.RoleAdmin), userHandler.List)
		usersGroup.GET("/:id", userHandler.Get)
		usersGroup.PATCH("/:id", userHandler.Update)
		usersGroup.DELETE("/:id", userHandler.Delete)
	}

	tasksGroup := api.Group("/tasks", middleware.Protect(authService))
	{
		tasksGroup.GET("", taskHandler.List)
		tasksGroup.POST("", taskHandler.Create)
		tasksGroup.GET("/:id", taskHandler.Get)
		tasksGroup.PATCH("/:id", taskHandler.Update)
		tasksGroup.DELETE("/:id", taskHandler.Delete)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not_found",
			"message": fmt.Sprintf("Route %s %s not found", c.Request.Method, c.Request.URL.Path),
		})
	})

	s.router = router
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.GetServerAddr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr, "environment", s.cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server shutdown completed")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
