package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/uikit-demo/session-service/handlers"
	"github.com/uikit-demo/session-service/internal/config"
	"github.com/uikit-demo/session-service/internal/database"
	"github.com/uikit-demo/session-service/internal/sessions"
	"github.com/uikit-demo/session-service/internal/storage"
	"github.com/uikit-demo/session-service/pkg/logger"
	"github.com/uikit-demo/session-service/pkg/metrics"
	"github.com/uikit-demo/session-service/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: backend=%s merge=%s delay=%s rate_limit=%v", cfg.Session.Backend, cfg.Session.MergePolicy, cfg.Session.LoginDelay, cfg.RateLimit.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		logger.Fatalf("session backend needs redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	st, closeStorage, err := storage.Open(ctx, cfg, rdb)
	if err != nil {
		logger.Fatalf("failed to open %s storage: %v", cfg.Session.Backend, err)
	}
	defer closeStorage()

	store, err := newSessionStore(cfg, st)
	if err != nil {
		logger.Fatalf("session store: %v", err)
	}
	// restore in the background; /ready and isLoading report progress
	go store.Restore(ctx)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r := newRouter(cfg, store, rdb)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting session service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// connectRedis returns the client shared by the redis backend and the redis
// rate limiter, or nil when nothing needs it. An unreachable server is fatal
// only for the redis backend; otherwise the client is dropped so the login
// limiter falls back to memory.
func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !database.NeedsRedis(cfg) {
		return nil, nil
	}
	rdb, err := database.NewRedisClient(ctx, cfg)
	if err != nil {
		_ = rdb.Close()
		if cfg.Session.Backend == "redis" {
			return nil, err
		}
		logger.Warnf("redis unavailable, using in-memory rate limiter: %v", err)
		return nil, nil
	}
	logger.Infof("Connected to Redis: %s", cfg.RedisAddr())
	return rdb, nil
}

func newSessionStore(cfg *config.Config, st storage.Storage) (*sessions.Store, error) {
	policy, err := sessions.ParseMergePolicy(cfg.Session.MergePolicy)
	if err != nil {
		return nil, err
	}
	opts := sessions.Options{
		StorageKey:     cfg.Session.StorageKey,
		UserID:         cfg.Session.UserID,
		LoginDelay:     cfg.Session.LoginDelay,
		MergePolicy:    policy,
		AvatarTemplate: cfg.Session.AvatarTemplate,
	}
	if cfg.Session.RequireEmail {
		opts.Authenticator = sessions.RequireEmail()
	}
	return sessions.NewStore(st, opts), nil
}

func newRouter(cfg *config.Config, store *sessions.Store, rdb *redis.Client) *gin.Engine {
	r := gin.New()

	corsCfg := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) == 0 || (len(cfg.Server.CORSOrigins) == 1 && cfg.Server.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader}
	corsCfg.ExposeHeaders = []string{"Content-Length", middleware.RequestIDHeader}
	r.Use(cors.New(corsCfg))

	r.Use(middleware.RequestIDMiddleware(), gin.Recovery())
	r.Use(middleware.SessionProvider(store))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready once the persisted session has been restored
	r.GET("/ready", func(c *gin.Context) {
		status, code := "ready", http.StatusOK
		if !store.Restored() {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"storage": store.Diagnostics(),
			"uptime":  time.Since(startTime).String(),
		})
	})

	var loginMW []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			loginMW = append(loginMW, middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			loginMW = append(loginMW, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handlers.NewSessionHandler(loginMW...).Register(r.Group("/"))
	handlers.RegisterSwagger(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
