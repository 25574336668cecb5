package escrow

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the primary lifecycle state of an escrow transaction
type Status string

const (
	StatusPending   Status = "pending"
	StatusHeld      Status = "held"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PaymentStatus is the capture-side outcome reported by the processor
type PaymentStatus string

const (
	PaymentStatusInitiated  PaymentStatus = "initiated"
	PaymentStatusSuccessful PaymentStatus = "successful"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// TransferStatus is the payout-side outcome driven by the settlement sweep
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusProcessing TransferStatus = "processing"
	TransferStatusSuccessful TransferStatus = "successful"
	TransferStatusFailed     TransferStatus = "failed"
)

// BalanceType is the balance bucket an amount currently counts toward
type BalanceType string

const (
	BalanceTypeIncoming  BalanceType = "incoming"
	BalanceTypeAvailable BalanceType = "available"
)

// Failure reasons recorded on terminal failed records.
const (
	ReasonPaymentFailed       = "payment failed"
	ReasonPaymentNotCompleted = "payment not completed"
	ReasonVerificationFailed  = "payment verification mismatch"
	ReasonRetryLimitReached   = "transfer retry limit reached"
)

const txRefPrefix = "PL-"

// Client is the payer identity captured at initialization
type Client struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Payee references the lawyer receiving the funds and their processor account
type Payee struct {
	ID                string `json:"id"`
	ExternalAccountID string `json:"external_account_id"`
}

// Transaction is a single escrowed payment
type Transaction struct {
	ID                    uuid.UUID      `json:"id"`
	TxRef                 string         `json:"tx_ref"`
	Amount                int64          `json:"amount"` // Whole currency units
	Currency              string         `json:"currency"`
	Client                Client         `json:"client"`
	Payee                 Payee          `json:"payee"`
	Status                Status         `json:"status"`
	PaymentStatus         PaymentStatus  `json:"payment_status"`
	TransferStatus        TransferStatus `json:"transfer_status"`
	BalanceType           BalanceType    `json:"balance_type"`
	HoldUntil             time.Time      `json:"hold_until"`
	TransferReference     string         `json:"transfer_reference,omitempty"`
	ExternalTransactionID string         `json:"external_transaction_id,omitempty"`
	TransferAttempts      int            `json:"transfer_attempts"`
	FailureReason         string         `json:"failure_reason,omitempty"`
	Version               int            `json:"version"` // For optimistic locking
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// NewTransaction validates the input and creates a pending transaction whose
// hold ends holdPeriod after creation.
func NewTransaction(amount int64, currency string, client Client, payee Payee, holdPeriod time.Duration, now time.Time) (*Transaction, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	if len(currency) != 3 {
		return nil, &ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
	}
	if strings.TrimSpace(client.Name) == "" {
		return nil, &ValidationError{Field: "clientName", Reason: "is required"}
	}
	if strings.TrimSpace(client.Email) == "" {
		return nil, &ValidationError{Field: "clientEmail", Reason: "is required"}
	}
	if !strings.Contains(client.Email, "@") {
		return nil, &ValidationError{Field: "clientEmail", Reason: "is not a valid email address"}
	}
	if strings.TrimSpace(client.Phone) == "" {
		return nil, &ValidationError{Field: "clientPhone", Reason: "is required"}
	}
	if strings.TrimSpace(payee.ID) == "" {
		return nil, &ValidationError{Field: "payeeId", Reason: "is required"}
	}
	if strings.TrimSpace(payee.ExternalAccountID) == "" {
		return nil, &ValidationError{Field: "payeeExternalAccountId", Reason: "is required"}
	}

	return &Transaction{
		ID:             uuid.New(),
		TxRef:          NewTxRef(),
		Amount:         amount,
		Currency:       strings.ToUpper(currency),
		Client:         client,
		Payee:          payee,
		Status:         StatusPending,
		PaymentStatus:  PaymentStatusInitiated,
		TransferStatus: TransferStatusPending,
		BalanceType:    BalanceTypeIncoming,
		HoldUntil:      now.Add(holdPeriod),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewTxRef returns a fresh client-visible correlation token.
func NewTxRef() string {
	return txRefPrefix + uuid.NewString()
}

// IsTerminal reports whether no further transitions are possible
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// IsSettleable reports whether the settlement sweep may attempt a payout at now.
func (t *Transaction) IsSettleable(now time.Time, maxAttempts int) bool {
	if t.Status != StatusHeld || t.BalanceType != BalanceTypeIncoming {
		return false
	}
	if t.HoldUntil.After(now) {
		return false
	}
	if t.TransferStatus != TransferStatusPending && t.TransferStatus != TransferStatusFailed {
		return false
	}
	return maxAttempts <= 0 || t.TransferAttempts < maxAttempts
}

// MarkHeld records a captured payment and starts (or extends) the hold.
// holdUntil never moves backwards.
func (t *Transaction) MarkHeld(externalID string, holdPeriod time.Duration, now time.Time) error {
	if t.Status != StatusPending {
		return &ErrInvalidTransition{TxRef: t.TxRef, From: t.Status, To: StatusHeld}
	}

	t.Status = StatusHeld
	t.PaymentStatus = PaymentStatusSuccessful
	t.BalanceType = BalanceTypeIncoming
	t.ExternalTransactionID = externalID
	if until := now.Add(holdPeriod); until.After(t.HoldUntil) {
		t.HoldUntil = until
	}
	t.touch(now)
	return nil
}

// MarkPaymentFailed records a capture that did not succeed
func (t *Transaction) MarkPaymentFailed(externalID, reason string, now time.Time) error {
	if t.Status != StatusPending {
		return &ErrInvalidTransition{TxRef: t.TxRef, From: t.Status, To: StatusFailed}
	}

	t.Status = StatusFailed
	t.PaymentStatus = PaymentStatusFailed
	if externalID != "" {
		t.ExternalTransactionID = externalID
	}
	t.FailureReason = reason
	t.touch(now)
	return nil
}

// Expire fails a pending transaction whose payment was never completed
func (t *Transaction) Expire(now time.Time) error {
	return t.MarkPaymentFailed("", ReasonPaymentNotCompleted, now)
}

// AwaitsLateCapture reports whether t was expired before its payment was
// captured and no late capture has been recorded for it yet.
func (t *Transaction) AwaitsLateCapture() bool {
	return t.Status == StatusFailed &&
		t.FailureReason == ReasonPaymentNotCompleted &&
		t.ExternalTransactionID == ""
}

// RecordLateCapture keeps the processor id of a successful capture that
// arrived after the transaction expired. The transaction stays failed; the
// captured money has to be reconciled outside the escrow lifecycle.
func (t *Transaction) RecordLateCapture(externalID string, now time.Time) error {
	if !t.AwaitsLateCapture() {
		return &ErrInvalidTransition{TxRef: t.TxRef, From: t.Status, To: StatusFailed}
	}

	t.ExternalTransactionID = externalID
	t.touch(now)
	return nil
}

// BeginTransfer marks a payout attempt as in flight.
func (t *Transaction) BeginTransfer(now time.Time) error {
	if t.Status != StatusHeld ||
		(t.TransferStatus != TransferStatusPending && t.TransferStatus != TransferStatusFailed) {
		return &ErrInvalidTransition{
			TxRef:        t.TxRef,
			From:         t.Status,
			To:           t.Status,
			TransferFrom: t.TransferStatus,
			TransferTo:   TransferStatusProcessing,
		}
	}

	t.TransferStatus = TransferStatusProcessing
	t.TransferAttempts++
	t.touch(now)
	return nil
}

// CompleteTransfer settles the transaction into the payee's available balance
func (t *Transaction) CompleteTransfer(reference string, now time.Time) error {
	if t.Status != StatusHeld {
		return &ErrInvalidTransition{TxRef: t.TxRef, From: t.Status, To: StatusCompleted}
	}

	t.Status = StatusCompleted
	t.TransferStatus = TransferStatusSuccessful
	t.BalanceType = BalanceTypeAvailable
	t.TransferReference = reference
	t.touch(now)
	return nil
}

// FailTransfer records a failed payout attempt. The transaction stays held for
// the next sweep until maxAttempts attempts have been made, after which it is
// failed for good. A maxAttempts of zero means no cap.
func (t *Transaction) FailTransfer(maxAttempts int, now time.Time) error {
	if t.Status != StatusHeld {
		return &ErrInvalidTransition{TxRef: t.TxRef, From: t.Status, To: StatusFailed}
	}

	t.TransferStatus = TransferStatusFailed
	if maxAttempts > 0 && t.TransferAttempts >= maxAttempts {
		t.Status = StatusFailed
		t.FailureReason = ReasonRetryLimitReached
	}
	t.touch(now)
	return nil
}

// touch bumps the version and moves UpdatedAt strictly forward.
func (t *Transaction) touch(now time.Time) {
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
	t.Version++
}
