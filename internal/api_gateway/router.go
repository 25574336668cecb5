package api_gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/escrow-settlement/internal/api_gateway/handler"
	"github.com/escrow-settlement/internal/api_gateway/middleware"
	"github.com/escrow-settlement/internal/platform/metrics"
)

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	paymentHandler *handler.PaymentHandler,
	transactionHandler *handler.TransactionHandler,
	checks map[string]HealthChecker,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	api := r.Group("/api")
	{
		payment := api.Group("/payment")
		{
			payment.POST("/initialize", paymentHandler.Initialize)
			payment.POST("/webhook", paymentHandler.Webhook)
		}

		transactions := api.Group("/transactions")
		{
			transactions.GET("/payee/:payeeId", transactionHandler.GetByPayee)
			transactions.GET("/:txRef", transactionHandler.GetByTxRef)
			transactions.GET("/:txRef/events", transactionHandler.GetEvents)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", healthHandler(checks))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

func healthHandler(checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				components[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "components": components, "timestamp": time.Now().UTC()})
	}
}
