package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"medquest/config"
	"medquest/controllers"
	"medquest/db"
	"medquest/internal/logger"
	"medquest/internal/metrics"
	"medquest/internal/xpcache"
	"medquest/leveling"
	"medquest/routes"
	"medquest/services"
	"medquest/store"
	"medquest/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "./config/config.prod.yml", "Path to config file")
	flag.Parse()

	// Load the configuration from the specified YAML file
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()
	if cfg.Logging.Mode == "production" || cfg.Logging.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, ready, err := openStore(ctx, cfg, logg)
	if err != nil {
		logg.Fatal("Failed to open store", "driver", cfg.Store.Driver, "error", err)
	}
	defer st.Close(context.Background())

	hub := websocket.NewHub(logg)
	var (
		cache     services.StatsCache
		limiter   controllers.RateLimiter
		publisher services.EventPublisher = hub
	)
	limitCfg := xpcache.RateLimitConfig{Max: cfg.RateLimit.Max, Window: cfg.RateLimit.Window}
	if cfg.Redis.Addr != "" {
		rdb, err := xpcache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logg.Fatal("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		}
		defer rdb.Close()
		cache = xpcache.NewRedisStatsCache(rdb, cfg.Redis.StatsTTL)
		limiter = xpcache.NewRedisRateLimiter(rdb, limitCfg)
		ready = withRedis(ready, rdb)

		stream := xpcache.NewEventStream(rdb, hub, logg)
		publisher = stream
		go func() {
			if err := stream.Run(ctx); err != nil {
				logg.Error("Event stream stopped", "error", err)
			}
		}()
		logg.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	} else {
		cache = xpcache.NewMemoryStatsCache(cfg.Redis.StatsTTL)
		limiter = xpcache.NewMemoryRateLimiter(limitCfg)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	levelCfg := cfg.Engine.Leveling
	svc := services.NewXPService(services.XPServiceDeps{
		Store:        st,
		Calculator:   leveling.New(&levelCfg),
		Cache:        cache,
		Publisher:    publisher,
		Metrics:      m,
		Logger:       logg,
		Location:     cfg.Location(),
		MaxAttempts:  cfg.Engine.MaxAttempts,
		HistoryLimit: cfg.Engine.HistoryLimit,
		RetryBackoff: cfg.Engine.RetryBackoff,
	})

	// Set up the Gin router and configure routes
	router := routes.NewRouter(routes.RouterConfig{
		JWTSecret:    cfg.JWT.Secret,
		AllowOrigins: cfg.CORS.AllowOrigins,
		Controller:   controllers.NewXPController(svc, limiter, logg),
		Hub:          hub,
		Metrics:      m,
		Logger:       logg,
		Ready:        ready,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logg.Info("Server starting", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	logg.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("Graceful shutdown failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (store.Store, func() error, error) {
	if cfg.Store.Driver != config.StoreDriverMongo {
		logg.Warn("Using the in-memory store; progress is lost on restart")
		return store.NewMemoryStore(), nil, nil
	}

	client, database, err := db.ConnectMongoDB(ctx, cfg.Database.URI)
	if err != nil {
		return nil, nil, err
	}
	logg.Info("Connected to MongoDB", "database", database.Name())

	ms := store.NewMongoStore(client, database)
	if err := ms.EnsureIndexes(ctx); err != nil {
		logg.Warn("Failed to create indexes", "error", err)
	}
	ready := func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx, nil)
	}
	return ms, ready, nil
}

func withRedis(ready func() error, rdb *redis.Client) func() error {
	return func() error {
		if ready != nil {
			if err := ready(); err != nil {
				return err
			}
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	}
}
