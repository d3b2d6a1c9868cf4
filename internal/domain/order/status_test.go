package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to confirmed", StatusPending, StatusConfirmed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to shipped skips confirmation", StatusPending, StatusShipped, false},
		{"confirmed to shipped", StatusConfirmed, StatusShipped, true},
		{"confirmed to cancelled", StatusConfirmed, StatusCancelled, true},
		{"shipped to delivered", StatusShipped, StatusDelivered, true},
		{"shipped to cancelled", StatusShipped, StatusCancelled, true},
		{"delivered to refunded", StatusDelivered, StatusRefunded, true},
		{"delivered to cancelled is impossible", StatusDelivered, StatusCancelled, false},
		{"cancelled is terminal", StatusCancelled, StatusPending, false},
		{"refunded is terminal", StatusRefunded, StatusDelivered, false},
		{"no transition to self", StatusPending, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_HoldsStock(t *testing.T) {
	assert.True(t, StatusPending.HoldsStock())
	assert.True(t, StatusConfirmed.HoldsStock())
	assert.True(t, StatusShipped.HoldsStock())
	assert.False(t, StatusDelivered.HoldsStock())
	assert.False(t, StatusCancelled.HoldsStock())
	assert.False(t, StatusRefunded.HoldsStock())
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusRefunded.Valid())
	assert.False(t, Status("archived").Valid())
	assert.False(t, Status("").Valid())
}

func TestPaymentStatus_Valid(t *testing.T) {
	assert.True(t, PaymentPending.Valid())
	assert.True(t, PaymentPaid.Valid())
	assert.True(t, PaymentFailed.Valid())
	assert.False(t, PaymentStatus("refunded").Valid())
}
