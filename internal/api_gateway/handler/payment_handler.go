package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escrow-settlement/internal/api_gateway/service"
	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/logger"
	"github.com/escrow-settlement/internal/platform/metrics"
	"github.com/escrow-settlement/internal/statemachine"
)

const (
	// WebhookSignatureHeader carries the shared secret the processor signs webhooks with
	WebhookSignatureHeader = "verif-hash"

	maxWebhookBodyBytes = 1 << 20
)

// PaymentHandler handles payment initialization and processor webhooks
type PaymentHandler struct {
	escrowService service.EscrowService
	logger        *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(logger *slog.Logger, escrowService service.EscrowService) *PaymentHandler {
	return &PaymentHandler{
		escrowService: escrowService,
		logger:        logger,
	}
}

// Initialize opens an escrow payment and returns the hosted payment link
func (h *PaymentHandler) Initialize(c *gin.Context) {
	log := logger.FromContext(c.Request.Context(), h.logger)

	var req InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.escrowService.Initialize(c.Request.Context(), statemachine.InitializeRequest{
		Amount: req.Amount,
		Client: escrow.Client{
			Name:  req.ClientName,
			Email: req.ClientEmail,
			Phone: req.ClientPhone,
		},
		Payee: escrow.Payee{
			ID:                req.PayeeID,
			ExternalAccountID: req.PayeeExternalAccountID,
		},
	})
	if err != nil {
		RespondServiceError(c, log, err)
		return
	}

	RespondOK(c, InitializePaymentResponse{
		TxRef: result.TxRef,
		Payment: PaymentResponse{
			Status:  result.Payment.Status,
			Message: result.Payment.Message,
			Link:    result.Payment.Link,
		},
	})
}

// Webhook applies a capture notification from the processor. The raw body is
// handed to the service untouched, after the signature header is read.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	log := logger.FromContext(c.Request.Context(), h.logger)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warn("Failed to read webhook body", "error", err)
		metrics.WebhooksTotal.WithLabelValues("bad_request").Inc()
		RespondBadRequest(c, "Unable to read request body")
		return
	}

	t, err := h.escrowService.ApplyWebhook(c.Request.Context(), c.GetHeader(WebhookSignatureHeader), body)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(webhookOutcome(err)).Inc()
		RespondServiceError(c, log, err)
		return
	}

	metrics.WebhooksTotal.WithLabelValues("applied").Inc()
	RespondWithData(c, http.StatusOK, WebhookResponse{
		TxRef:  t.TxRef,
		Status: string(t.Status),
	})
}

func webhookOutcome(err error) string {
	var (
		authErr       *escrow.AuthenticationError
		notFoundErr   *escrow.NotFoundError
		validationErr *escrow.ValidationError
	)
	switch {
	case errors.As(err, &authErr):
		return "unauthorized"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &validationErr):
		return "bad_request"
	default:
		return "error"
	}
}
