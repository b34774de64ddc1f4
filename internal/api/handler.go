package api

import (
	"context"
	"net/http"
	"time"

	"checkout-service/internal/auth"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	carts    *service.CartService
	orders   *service.OrderService
	payments *service.PaymentService
	verifier *auth.TokenVerifier
	deps     map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	carts *service.CartService,
	orders *service.OrderService,
	payments *service.PaymentService,
	verifier *auth.TokenVerifier,
	deps map[string]Pinger,
) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		payments: payments,
		verifier: verifier,
		deps:     deps,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", authenticate(h.verifier))
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items/:itemId", h.updateCartItem)
		v1.DELETE("/cart/items/:itemId", h.removeCartItem)
		v1.DELETE("/cart", h.clearCart)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:orderId", h.getOrder)
		v1.GET("/orders/:orderId/track", h.trackOrder)
		v1.PUT("/orders/:orderId/cancel", h.cancelOrder)
		v1.PUT("/orders/:orderId/status", h.updateOrderStatus)

		v1.POST("/payments/orders", h.createPaymentIntent)
		v1.GET("/payments/orders/:orderId", h.getPayment)
		v1.POST("/payments/verify", h.verifyPayment)
		v1.POST("/payments/failure", h.recordPaymentFailure)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, state := http.StatusOK, "ready"
	if !ready {
		status, state = http.StatusServiceUnavailable, "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}
