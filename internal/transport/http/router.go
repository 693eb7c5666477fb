package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	Handler      *Handler
	WSHandler    *WSHandler
	Auth         *Auth
	AllowOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	router.Use(cors.New(corsCfg))

	// public
	router.GET("/healthz", HealthCheck)
	router.POST("/auth/telegram", cfg.Handler.TelegramLogin)

	// protected
	protected := router.Group("/")
	protected.Use(cfg.Auth.RequireAuth())

	protected.GET("/results", cfg.Handler.ListResults)
	protected.POST("/results", cfg.Handler.RecordResult)
	protected.GET("/results/stats", cfg.Handler.ResultStats)
	protected.GET("/results/:topic/:id", cfg.Handler.ReviewResult)

	protected.GET("/quota", cfg.Handler.Quota)
	protected.POST("/subscription/load", cfg.Handler.LoadSubscription)

	protected.POST("/ai/explain", cfg.Handler.Explain)
	protected.POST("/ai/advice", cfg.Handler.Advice)

	protected.GET("/practice/:topic", cfg.Handler.Practice)

	if cfg.WSHandler != nil {
		protected.GET("/ws", cfg.WSHandler.ServeWS)
	}

	admin := protected.Group("/billing")
	admin.Use(RequireAdmin())
	admin.POST("/payment", cfg.Handler.RecordPayment)

	return router
}
