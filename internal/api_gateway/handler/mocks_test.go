package handler

import (
	"context"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/domain/timeline"
	"github.com/escrow-settlement/internal/statemachine"
	"github.com/stretchr/testify/mock"
)

// PaginatedResponse is a generic version of Response for testing paginated data
type PaginatedResponse[T any] struct {
	Data          []T        `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

// DataResponse is a typed Response for decoding single-object payloads
type DataResponse[T any] struct {
	Data          T          `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

type MockEscrowService struct {
	mock.Mock
}

func (m *MockEscrowService) Initialize(ctx context.Context, req statemachine.InitializeRequest) (*statemachine.InitializeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*statemachine.InitializeResult), args.Error(1)
}

func (m *MockEscrowService) ApplyWebhook(ctx context.Context, signature string, body []byte) (*escrow.Transaction, error) {
	args := m.Called(ctx, signature, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Transaction), args.Error(1)
}

func (m *MockEscrowService) GetTransaction(ctx context.Context, txRef string) (*escrow.Transaction, error) {
	args := m.Called(ctx, txRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Transaction), args.Error(1)
}

func (m *MockEscrowService) GetPayeeTransactions(ctx context.Context, payeeID string) (*statemachine.PayeeView, error) {
	args := m.Called(ctx, payeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*statemachine.PayeeView), args.Error(1)
}

type MockTimelineService struct {
	mock.Mock
}

func (m *MockTimelineService) GetTransactionEvents(ctx context.Context, txRef string, page, perPage int) ([]*timeline.Entry, int64, error) {
	args := m.Called(ctx, txRef, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*timeline.Entry), args.Get(1).(int64), args.Error(2)
}
