package escrow

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError indicates malformed client input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// AuthenticationError indicates a webhook whose signature did not match
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "webhook authentication failed: " + e.Reason
}

// NotFoundError indicates an unknown transaction reference
type NotFoundError struct {
	TxRef string
}

func (e *NotFoundError) Error() string {
	return "transaction not found: " + e.TxRef
}

// Is implements the errors.Is interface for NotFoundError
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	// An empty target reference matches any NotFoundError
	return t.TxRef == "" || t.TxRef == e.TxRef
}

// GatewayError wraps a failed call to the payment processor
type GatewayError struct {
	Op    string
	TxRef string
	Err   error
}

func (e *GatewayError) Error() string {
	if e.TxRef == "" {
		return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("payment gateway %s failed for %s: %v", e.Op, e.TxRef, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	TransactionID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for transaction: " + e.TransactionID.String()
}

// Is implements the errors.Is interface for ErrConcurrentModification
func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	return t.TransactionID == uuid.Nil || t.TransactionID == e.TransactionID
}

// ErrDuplicateTxRef indicates txRef uniqueness violation
type ErrDuplicateTxRef struct {
	TxRef string
}

func (e ErrDuplicateTxRef) Error() string {
	return "transaction with reference already exists: " + e.TxRef
}

// ErrInvalidTransition indicates a state change the lifecycle does not allow
type ErrInvalidTransition struct {
	TxRef string
	From  Status
	To    Status
	// Set when the refused change is a payout step rather than a status change
	TransferFrom TransferStatus
	TransferTo   TransferStatus
}

func (e *ErrInvalidTransition) Error() string {
	if e.TransferTo != "" {
		return fmt.Sprintf("invalid transfer transition for %s (%s): %s -> %s",
			e.TxRef, e.From, e.TransferFrom, e.TransferTo)
	}
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.TxRef, e.From, e.To)
}
