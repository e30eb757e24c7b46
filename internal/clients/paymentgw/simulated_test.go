package paymentgw

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedGatewayCharge(t *testing.T) {
	g := NewSimulatedGateway()

	result, err := g.Charge(context.Background(), uuid.New(), 1597, "Credit Card")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.TransactionID)

	result, err = g.Charge(context.Background(), uuid.New(), 0, "Credit Card")
	require.NoError(t, err)
	assert.False(t, result.Success)

	result, err = g.Charge(context.Background(), uuid.New(), 1597, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestSimulatedGatewayRefund(t *testing.T) {
	g := NewSimulatedGateway()

	result, err := g.Refund(context.Background(), uuid.NewString(), 1597)
	require.NoError(t, err)
	assert.True(t, result.Success)

	result, err = g.Refund(context.Background(), "", 1597)
	require.NoError(t, err)
	assert.False(t, result.Success)

	result, err = g.Refund(context.Background(), uuid.NewString(), -1)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
