package statemachine

import (
	"context"

	"github.com/escrow-settlement/internal/platform/gateway"
)

// PaymentGateway is the part of the processor client the state machine needs
type PaymentGateway interface {
	InitializePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentSession, error)
	VerifyPayment(ctx context.Context, externalID string) (*gateway.Verification, error)
}
