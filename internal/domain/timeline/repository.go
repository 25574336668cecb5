package timeline

import (
	"context"
)

// Repository stores the projected event history, one document per event
type Repository interface {
	// Append stores entry. Returns ErrDuplicateEntry when the event was
	// already projected.
	Append(ctx context.Context, entry *Entry) error

	// ListByTxRef returns the history of a transaction in the order it happened
	ListByTxRef(ctx context.Context, txRef string, limit, offset int) ([]*Entry, error)
	CountByTxRef(ctx context.Context, txRef string) (int64, error)
}

// ErrDuplicateEntry indicates the event has already been projected
type ErrDuplicateEntry struct {
	EventID string
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate timeline entry: " + e.EventID
}

// Is implements the errors.Is interface for ErrDuplicateEntry
func (e ErrDuplicateEntry) Is(target error) bool {
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	// An empty target EventID matches any duplicate
	return t.EventID == "" || t.EventID == e.EventID
}
