// Package web assembles the HTTP API.
package web

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-cryptopay/web/controllers"
	"go-cryptopay/web/middleware"
)

type RouterConfig struct {
	AllowedOrigins []string
	// CreateLimit requests per CreateWindow are allowed per IP on POST /api/pay.
	CreateLimit  int
	CreateWindow time.Duration
	// Admin routes are only mounted when AdminSecret is set.
	AdminSecret []byte
	// Done stops background cleanup.
	Done <-chan struct{}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func NewRouter(h *controllers.Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if cfg.CreateLimit <= 0 {
		cfg.CreateLimit = 15
	}
	if cfg.CreateWindow <= 0 {
		cfg.CreateWindow = time.Minute
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), cors.New(corsConfig(cfg.AllowedOrigins)))

	createLimiter := middleware.NewRateLimiter(cfg.CreateLimit, cfg.CreateWindow)
	createLimiter.StartCleanup(10*time.Minute, cfg.Done)

	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.POST("/pay", createLimiter.Middleware(), h.CreatePayment)
	api.GET("/pay/:reference", h.PaymentStatus)
	api.GET("/pay/:reference/qr", h.PaymentQR)

	if len(cfg.AdminSecret) > 0 {
		loginLimiter := middleware.NewRateLimiter(5, time.Minute)
		loginLimiter.StartCleanup(10*time.Minute, cfg.Done)

		r.POST("/admin/login", loginLimiter.Middleware(), h.AdminLogin)
		admin := r.Group("/admin", middleware.AdminAuth(cfg.AdminSecret))
		admin.GET("/payments", h.ListPayments)
		admin.POST("/reconcile", h.Reconcile)
	}
	return r
}
