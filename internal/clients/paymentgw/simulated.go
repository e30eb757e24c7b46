package paymentgw

import (
	"context"

	"github.com/google/uuid"
)

// SimulatedGateway approves every well-formed charge and refund without
// leaving the process. Used for local runs and demos when
// clients.payment.simulated is set.
type SimulatedGateway struct{}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (g *SimulatedGateway) Charge(
	_ context.Context,
	_ uuid.UUID,
	amountCents int64,
	paymentMethod string,
) (*ChargeResult, error) {
	if amountCents <= 0 {
		return &ChargeResult{
			Success: false,
			Message: "payment failed: invalid amount",
		}, nil
	}

	if paymentMethod == "" {
		return &ChargeResult{
			Success: false,
			Message: "payment failed: missing payment method",
		}, nil
	}

	return &ChargeResult{
		Success:       true,
		TransactionID: uuid.NewString(),
		Message:       "payment processed",
	}, nil
}

func (g *SimulatedGateway) Refund(
	_ context.Context,
	transactionID string,
	amountCents int64,
) (*RefundResult, error) {
	if transactionID == "" {
		return &RefundResult{
			Success: false,
			Message: "refund failed: invalid transaction id",
		}, nil
	}

	if amountCents <= 0 {
		return &RefundResult{
			Success: false,
			Message: "refund failed: invalid amount",
		}, nil
	}

	return &RefundResult{
		Success: true,
		Message: "refund processed",
	}, nil
}
