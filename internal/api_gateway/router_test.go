package api_gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrow-settlement/internal/api_gateway/handler"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(checks map[string]HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := gin.New()
	setupRouter(logger, r,
		handler.NewPaymentHandler(logger, nil),
		handler.NewTransactionHandler(logger, nil, nil),
		checks,
	)
	return r
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("all components up", func(t *testing.T) {
		r := newTestRouter(map[string]HealthChecker{
			"postgres": pingFunc(func(context.Context) error { return nil }),
			"mongodb":  pingFunc(func(context.Context) error { return nil }),
		})

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("component down", func(t *testing.T) {
		r := newTestRouter(map[string]HealthChecker{
			"postgres": pingFunc(func(context.Context) error { return nil }),
			"mongodb":  pingFunc(func(context.Context) error { return errors.New("no reachable servers") }),
		})

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		var body struct {
			Status     string            `json:"status"`
			Components map[string]string `json:"components"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "unavailable", body.Components["mongodb"])
		assert.Equal(t, "ok", body.Components["postgres"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(nil)

	routes := make(map[string]bool)
	for _, route := range r.Routes() {
		routes[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /api/payment/initialize",
		"POST /api/payment/webhook",
		"GET /api/transactions/payee/:payeeId",
		"GET /api/transactions/:txRef",
		"GET /api/transactions/:txRef/events",
		"GET /health",
		"GET /metrics",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
}
