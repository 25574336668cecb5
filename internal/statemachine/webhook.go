package statemachine

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/logger"
	"github.com/escrow-settlement/internal/platform/gateway"
	"github.com/escrow-settlement/internal/platform/metrics"
)

const (
	paymentSuccessful = "successful"
	maxWebhookRereads = 3
)

// WebhookPayload is the capture notification sent by the processor
type WebhookPayload struct {
	TxRef  string
	Status string
	ID     string
}

type webhookBody struct {
	TxRef      string          `json:"txRef"`
	SnakeTxRef string          `json:"tx_ref"`
	Status     string          `json:"status"`
	ID         json.RawMessage `json:"id"`
	Data       *struct {
		TxRef  string          `json:"tx_ref"`
		Status string          `json:"status"`
		ID     json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseWebhookPayload accepts both the flat {txRef, status, id} body and the
// processor's {event, data:{tx_ref, status, id}} body.
func ParseWebhookPayload(body []byte) (WebhookPayload, error) {
	var raw webhookBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookPayload{}, &escrow.ValidationError{Field: "body", Reason: "is not valid JSON"}
	}

	p := WebhookPayload{TxRef: raw.TxRef, Status: raw.Status, ID: externalID(raw.ID)}
	if p.TxRef == "" {
		p.TxRef = raw.SnakeTxRef
	}
	if raw.Data != nil && p.TxRef == "" {
		p = WebhookPayload{TxRef: raw.Data.TxRef, Status: raw.Data.Status, ID: externalID(raw.Data.ID)}
	}

	if strings.TrimSpace(p.TxRef) == "" {
		return WebhookPayload{}, &escrow.ValidationError{Field: "txRef", Reason: "is required"}
	}
	return p, nil
}

// externalID reads an id the processor may send as a number or a string
func externalID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// VerifySignature compares the declared webhook signature with the shared
// secret in constant time
func (s *Service) VerifySignature(signature string) error {
	if s.cfg.WebhookSecret == "" {
		return &escrow.AuthenticationError{Reason: "webhook secret not configured"}
	}
	if signature == "" {
		return &escrow.AuthenticationError{Reason: "missing signature"}
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(s.cfg.WebhookSecret)) != 1 {
		return &escrow.AuthenticationError{Reason: "signature mismatch"}
	}
	return nil
}

// ApplyWebhook authenticates a capture notification and applies it to the
// matching pending transaction. Notifications for records that already left
// pending change nothing, except a successful capture of an expired record:
// that one is kept as a late capture event for reconciliation and the record
// stays failed.
func (s *Service) ApplyWebhook(ctx context.Context, signature string, body []byte) (*escrow.Transaction, error) {
	log := logger.FromContext(ctx, s.logger)

	if err := s.VerifySignature(signature); err != nil {
		log.Warn("Rejected webhook with invalid signature",
			"security_event", true,
			"error", err,
		)
		return nil, err
	}

	payload, err := ParseWebhookPayload(body)
	if err != nil {
		log.Warn("Rejected malformed webhook", "error", err)
		return nil, err
	}
	log = log.With("tx_ref", payload.TxRef, "external_id", payload.ID)

	for attempt := 1; ; attempt++ {
		t, err := s.repo.GetByTxRef(ctx, payload.TxRef)
		if err != nil {
			return nil, err
		}

		var eventType escrow.EventType
		switch {
		case t.Status == escrow.StatusPending:
			eventType, err = s.applyPayment(ctx, t, payload)
			if err != nil {
				return nil, err
			}
		case t.AwaitsLateCapture() && isSuccessful(payload.Status):
			if err := t.RecordLateCapture(payload.ID, s.now().UTC()); err != nil {
				return nil, err
			}
			eventType = escrow.EventLateCapture
		default:
			if payload.ID != "" && t.ExternalTransactionID != "" && payload.ID != t.ExternalTransactionID {
				log.Warn("Webhook repeat carries a different external id",
					"stored_external_id", t.ExternalTransactionID,
					"status", string(t.Status),
				)
			} else {
				log.Info("Webhook ignored for settled state", "status", string(t.Status))
			}
			return t, nil
		}

		err = s.record(ctx, t, eventType, modeUpdate)
		if err == nil {
			if eventType == escrow.EventLateCapture {
				metrics.LateCapturesTotal.Inc()
				log.Error("Payment captured after the transaction expired",
					"security_event", true,
					"reconciliation", true,
					"failure_reason", t.FailureReason,
					"amount", t.Amount,
					"currency", t.Currency,
				)
				return t, nil
			}
			log.Info("Webhook applied", "status", string(t.Status), "hold_until", t.HoldUntil)
			return t, nil
		}
		if !isConflict(err) || attempt >= maxWebhookRereads {
			log.Error("Failed to apply webhook", "error", err)
			return nil, err
		}
		log.Info("Webhook lost a version race, re-reading", "attempt", attempt)
	}
}

func (s *Service) applyPayment(ctx context.Context, t *escrow.Transaction, p WebhookPayload) (escrow.EventType, error) {
	now := s.now().UTC()

	if !isSuccessful(p.Status) {
		if err := t.MarkPaymentFailed(p.ID, escrow.ReasonPaymentFailed, now); err != nil {
			return "", err
		}
		return escrow.EventPaymentFailed, nil
	}

	if s.cfg.VerifyWebhookPayments {
		if strings.TrimSpace(p.ID) == "" {
			return "", &escrow.ValidationError{Field: "id", Reason: "is required to verify the payment"}
		}
		v, err := s.gateway.VerifyPayment(ctx, p.ID)
		if err != nil {
			return "", &escrow.GatewayError{Op: "verify", TxRef: t.TxRef, Err: err}
		}
		if !verificationMatches(v, t) {
			logger.FromContext(ctx, s.logger).Warn("Payment verification mismatch",
				"tx_ref", t.TxRef,
				"verified_status", v.Status,
				"verified_tx_ref", v.TxRef,
				"verified_amount", v.Amount.String(),
			)
			if err := t.MarkPaymentFailed(p.ID, escrow.ReasonVerificationFailed, now); err != nil {
				return "", err
			}
			return escrow.EventPaymentFailed, nil
		}
	}

	if err := t.MarkHeld(p.ID, s.cfg.HoldPeriod, now); err != nil {
		return "", err
	}
	return escrow.EventHeld, nil
}

func isSuccessful(status string) bool {
	return strings.EqualFold(status, paymentSuccessful)
}

func verificationMatches(v *gateway.Verification, t *escrow.Transaction) bool {
	if !isSuccessful(v.Status) || v.TxRef != t.TxRef {
		return false
	}
	if v.Currency != "" && !strings.EqualFold(v.Currency, t.Currency) {
		return false
	}
	amount, err := strconv.ParseFloat(v.Amount.String(), 64)
	if err != nil {
		return false
	}
	return amount >= float64(t.Amount)
}
