package shipping_test

import (
	"testing"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/shipping"
	"github.com/stretchr/testify/assert"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		carrier string
		want    domain.TrackingStatus
	}{
		{"Manifested", domain.TrackingPending},
		{"Picked Up", domain.TrackingPicked},
		{"in_transit", domain.TrackingInTransit},
		{"Out for Delivery", domain.TrackingInTransit},
		{"Pending", domain.TrackingInTransit},
		{"DELIVERED", domain.TrackingDelivered},
		{"RTO Initiated", domain.TrackingFailed},
		{"Lost", domain.TrackingFailed},
		{"something new", domain.TrackingPending},
	}

	for _, tt := range tests {
		t.Run(tt.carrier, func(t *testing.T) {
			assert.Equal(t, tt.want, shipping.MapStatus(tt.carrier))
		})
	}
}
