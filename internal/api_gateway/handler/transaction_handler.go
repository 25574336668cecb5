package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escrow-settlement/internal/api_gateway/service"
	"github.com/escrow-settlement/internal/logger"
)

// TransactionHandler handles HTTP requests for escrow transaction queries
type TransactionHandler struct {
	escrowService   service.EscrowService
	timelineService service.TimelineService
	logger          *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, escrowService service.EscrowService, timelineService service.TimelineService) *TransactionHandler {
	return &TransactionHandler{
		escrowService:   escrowService,
		timelineService: timelineService,
		logger:          logger,
	}
}

// GetByTxRef retrieves a single transaction, returns 404 if not found
func (h *TransactionHandler) GetByTxRef(c *gin.Context) {
	t, err := h.escrowService.GetTransaction(c.Request.Context(), c.Param("txRef"))
	if err != nil {
		RespondServiceError(c, logger.FromContext(c.Request.Context(), h.logger), err)
		return
	}

	RespondOK(c, mapTransactionToResponse(t))
}

// GetByPayee lists a payee's transactions, newest first, with the incoming and
// available balances computed from them
func (h *TransactionHandler) GetByPayee(c *gin.Context) {
	view, err := h.escrowService.GetPayeeTransactions(c.Request.Context(), c.Param("payeeId"))
	if err != nil {
		RespondServiceError(c, logger.FromContext(c.Request.Context(), h.logger), err)
		return
	}

	transactions := make([]TransactionResponse, 0, len(view.Transactions))
	for _, t := range view.Transactions {
		transactions = append(transactions, mapTransactionToResponse(t))
	}

	RespondOK(c, PayeeTransactionsResponse{
		Transactions: transactions,
		Balances:     view.Balances,
	})
}

// GetEvents retrieves the paginated lifecycle timeline of a transaction
func (h *TransactionHandler) GetEvents(c *gin.Context) {
	log := logger.FromContext(c.Request.Context(), h.logger)
	txRef := c.Param("txRef")

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		log.Warn("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.timelineService.GetTransactionEvents(c.Request.Context(), txRef, pagination.Page, pagination.PerPage)
	if err != nil {
		log.Error("Failed to get transaction events", "tx_ref", txRef, "error", err)
		RespondInternalError(c)
		return
	}
	if total == 0 {
		RespondNotFound(c, "No events recorded for transaction")
		return
	}

	events := make([]TimelineEventResponse, 0, len(entries))
	for _, e := range entries {
		events = append(events, mapTimelineEntryToResponse(e))
	}

	RespondWithPaginatedData(c, http.StatusOK, events, pagination.Page, pagination.PerPage, int(total))
}
