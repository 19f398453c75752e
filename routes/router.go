package routes

import (
	"net/http"

	"medquest/controllers"
	"medquest/internal/logger"
	"medquest/internal/metrics"
	"medquest/middlewares"
	"medquest/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	JWTSecret    string
	AllowOrigins []string
	Controller   *controllers.XPController
	Hub          *websocket.Hub
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
	// Ready reports backend health for /health; nil means always ready.
	Ready func() error
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Logger != nil {
		router.Use(logger.GinMiddleware(cfg.Logger))
	}
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.GinMiddleware())
	}

	router.SetTrustedProxies([]string{"127.0.0.1", "localhost"})
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", logger.RequestIDHeader},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		if cfg.Ready != nil {
			if err := cfg.Ready(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "details": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Protected routes (JWT auth)
	auth := router.Group("/")
	auth.Use(middlewares.AuthMiddleware(cfg.JWTSecret))
	{
		SetupXPRoutes(auth, cfg.Controller, cfg.Hub)
		SetupAdminRoutes(auth, cfg.Controller)
	}
	return router
}
