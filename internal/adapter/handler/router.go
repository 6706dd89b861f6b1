package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/card-shop/internal/metrics"
	"github.com/rl1809/card-shop/internal/port"
)

// NewRouter wires the public routes. limiter may be nil; CORS is only
// enabled when origins are given.
func NewRouter(h *HTTPHandler, verifier port.IdentityVerifier, limiter *RateLimiter, m *metrics.Metrics, logger *zap.Logger, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), Metrics(m))
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     corsOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", IdempotencyKeyHeader, RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	authed := r.Group("/", Authenticate(verifier))
	authed.POST("/cart", h.AddItem)
	authed.GET("/cart", h.ListCart)
	authed.PUT("/cart/:lineId", h.SetQuantity)
	authed.DELETE("/cart/:lineId", h.RemoveItem)

	checkout := []gin.HandlerFunc{h.Checkout}
	if limiter != nil {
		checkout = append([]gin.HandlerFunc{limiter.Middleware()}, checkout...)
	}
	authed.POST("/checkout", checkout...)

	authed.GET("/orders", h.ListOrders)
	authed.GET("/orders/:orderId", h.GetOrder)

	return r
}
