package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

	allowed := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusCancelled},
		StatusProcessing: {StatusShipped, StatusCancelled},
		StatusShipped:    {StatusDelivered},
		StatusDelivered:  {},
		StatusCancelled:  {},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}

			got := from.CanTransitionTo(to)
			assert.Equalf(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestStatusCancellable(t *testing.T) {
	assert.True(t, StatusPending.IsCancellable())
	assert.True(t, StatusProcessing.IsCancellable())
	assert.False(t, StatusShipped.IsCancellable())
	assert.False(t, StatusDelivered.IsCancellable())
	assert.False(t, StatusCancelled.IsCancellable())
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"Pending", "Processing", "Shipped", "Delivered", "Cancelled"} {
		parsed, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, s, parsed.String())
	}

	_, err := ParseStatus("Refunded")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ParseStatus("pending")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
