package service

import (
	"context"
	"log/slog"

	"github.com/escrow-settlement/internal/domain/timeline"
	"github.com/escrow-settlement/internal/logger"
)

// TimelineServiceImpl implements the TimelineService interface
type TimelineServiceImpl struct {
	timelineRepo timeline.Repository
	logger       *slog.Logger
}

// NewTimelineService creates a new timeline service
func NewTimelineService(logger *slog.Logger, timelineRepo timeline.Repository) TimelineService {
	return &TimelineServiceImpl{
		timelineRepo: timelineRepo,
		logger:       logger,
	}
}

// GetTransactionEvents retrieves paginated lifecycle events for a transaction
func (s *TimelineServiceImpl) GetTransactionEvents(ctx context.Context, txRef string, page, perPage int) ([]*timeline.Entry, int64, error) {
	offset := (page - 1) * perPage

	entries, err := s.timelineRepo.ListByTxRef(ctx, txRef, perPage, offset)
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("Failed to get transaction events", "tx_ref", txRef, "error", err)
		return nil, 0, err
	}

	total, err := s.timelineRepo.CountByTxRef(ctx, txRef)
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("Failed to count transaction events", "tx_ref", txRef, "error", err)
		return nil, 0, err
	}

	return entries, total, nil
}
