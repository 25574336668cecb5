package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/domain/timeline"
	"github.com/escrow-settlement/internal/platform/messaging/producers"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTimelineRepo mocks timeline.Repository
type MockTimelineRepo struct {
	mock.Mock
}

func (m *MockTimelineRepo) Append(ctx context.Context, entry *timeline.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockTimelineRepo) ListByTxRef(ctx context.Context, txRef string, limit, offset int) ([]*timeline.Entry, error) {
	args := m.Called(ctx, txRef, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*timeline.Entry), args.Error(1)
}

func (m *MockTimelineRepo) CountByTxRef(ctx context.Context, txRef string) (int64, error) {
	args := m.Called(ctx, txRef)
	return args.Get(0).(int64), args.Error(1)
}

// MockProjectionService mocks ProjectionService
type MockProjectionService struct {
	mock.Mock
}

func (m *MockProjectionService) Project(ctx context.Context, event *escrow.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockDLQ mocks producers.DeadLetterPublisher
type MockDLQ struct {
	mock.Mock
}

func (m *MockDLQ) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDLQ) Close() error {
	return m.Called().Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() *escrow.Event {
	return &escrow.Event{
		ID:            uuid.New(),
		Type:          escrow.EventCompleted,
		TransactionID: uuid.New(),
		TxRef:         "PL-1",
		PayeeID:       "lawyer-1",
		Amount:        5000,
		Currency:      "NGN",
		Status:        escrow.StatusCompleted,
		BalanceType:   escrow.BalanceTypeAvailable,
		Version:       4,
		CorrelationID: "run-1",
		OccurredAt:    time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestTimelineProjector_Project(t *testing.T) {
	ctx := context.Background()
	recordedAt := time.Date(2024, 5, 4, 10, 0, 5, 0, time.UTC)

	tests := []struct {
		name      string
		appendErr error
		wantErr   string
	}{
		{name: "appends entry"},
		{name: "duplicate is success", appendErr: timeline.ErrDuplicateEntry{EventID: "x"}},
		{name: "wrapped duplicate is success", appendErr: fmt.Errorf("insert: %w", timeline.ErrDuplicateEntry{})},
		{name: "store failure", appendErr: errors.New("mongo down"), wantErr: "failed to project event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockTimelineRepo)
			p := NewTimelineProjector(testLogger(), repo)
			p.now = func() time.Time { return recordedAt }
			event := testEvent()

			repo.On("Append", ctx, mock.MatchedBy(func(e *timeline.Entry) bool {
				return e.EventID == event.ID.String() &&
					e.TxRef == "PL-1" &&
					e.Status == escrow.StatusCompleted &&
					e.RecordedAt.Equal(recordedAt)
			})).Return(tt.appendErr).Once()

			err := p.Project(ctx, event)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestWorkerPoolProjector_Project(t *testing.T) {
	base := new(MockProjectionService)
	pool, err := NewWorkerPoolProjector(base, 2, testLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	assert.Equal(t, 2, pool.Capacity())

	ok := testEvent()
	failing := testEvent()
	failing.TxRef = "PL-2"

	base.On("Project", mock.Anything, mock.MatchedBy(func(e *escrow.Event) bool { return e.ID == ok.ID })).Return(nil).Once()
	base.On("Project", mock.Anything, mock.MatchedBy(func(e *escrow.Event) bool { return e.ID == failing.ID })).Return(errors.New("boom")).Once()

	assert.NoError(t, pool.Project(context.Background(), ok))
	assert.EqualError(t, pool.Project(context.Background(), failing), "boom")
	base.AssertExpectations(t)
}

func TestWorkerPoolProjector_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	base := new(MockProjectionService)
	base.On("Project", mock.Anything, mock.Anything).Run(func(mock.Arguments) { <-release }).Return(nil).Once()

	pool, err := NewWorkerPoolProjector(base, 1, testLogger())
	require.NoError(t, err)
	defer pool.Shutdown()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, pool.Project(ctx, testEvent()), context.DeadlineExceeded)
}

func TestEventHandler_HandleMessage(t *testing.T) {
	ctx := context.Background()
	event := testEvent()
	value, err := json.Marshal(event)
	require.NoError(t, err)

	t.Run("projects decoded event", func(t *testing.T) {
		projector := new(MockProjectionService)
		handler := NewEventHandler(testLogger(), projector, new(MockDLQ))

		projector.On("Project", ctx, mock.MatchedBy(func(e *escrow.Event) bool {
			return e.ID == event.ID && e.Version == 4 && e.Amount == 5000
		})).Return(nil).Once()

		assert.NoError(t, handler.HandleMessage(ctx, []byte("PL-1"), value))
		projector.AssertExpectations(t)
	})

	t.Run("projection failure is returned for redelivery", func(t *testing.T) {
		projector := new(MockProjectionService)
		handler := NewEventHandler(testLogger(), projector, new(MockDLQ))
		projector.On("Project", ctx, mock.Anything).Return(errors.New("mongo down")).Once()

		err := handler.HandleMessage(ctx, []byte("PL-1"), value)
		assert.ErrorContains(t, err, "projecting event")
	})

	t.Run("malformed message goes to DLQ", func(t *testing.T) {
		projector := new(MockProjectionService)
		dlq := new(MockDLQ)
		handler := NewEventHandler(testLogger(), projector, dlq)
		dlq.On("PublishToDLQ", ctx, "PL-9", []byte("{oops"), mock.AnythingOfType("string")).Return(nil).Once()

		assert.NoError(t, handler.HandleMessage(ctx, []byte("PL-9"), []byte("{oops")))
		dlq.AssertExpectations(t)
		projector.AssertNotCalled(t, "Project", mock.Anything, mock.Anything)
	})

	t.Run("incomplete event goes to DLQ", func(t *testing.T) {
		dlq := new(MockDLQ)
		handler := NewEventHandler(testLogger(), new(MockProjectionService), dlq)
		dlq.On("PublishToDLQ", ctx, "k", mock.Anything, mock.MatchedBy(func(reason string) bool {
			return reason == "Escrow event is missing tx_ref or type: incomplete event"
		})).Return(nil).Once()

		assert.NoError(t, handler.HandleMessage(ctx, []byte("k"), []byte(`{"amount":1}`)))
		dlq.AssertExpectations(t)
	})

	t.Run("DLQ failure is retried", func(t *testing.T) {
		dlq := new(MockDLQ)
		handler := NewEventHandler(testLogger(), new(MockProjectionService), dlq)
		dlq.On("PublishToDLQ", ctx, "k", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

		err := handler.HandleMessage(ctx, []byte("k"), []byte("{oops"))
		assert.ErrorContains(t, err, "failed to dead-letter message")
	})

	t.Run("disabled DLQ drops message", func(t *testing.T) {
		dlq := new(MockDLQ)
		handler := NewEventHandler(testLogger(), new(MockProjectionService), dlq)
		dlq.On("PublishToDLQ", ctx, "k", mock.Anything, mock.Anything).Return(producers.ErrDLQDisabled).Once()

		assert.NoError(t, handler.HandleMessage(ctx, []byte("k"), []byte("{oops")))
	})
}
