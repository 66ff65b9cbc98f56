package shipping

import (
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

var carrierStatuses = map[string]domain.TrackingStatus{
	"manifested":        domain.TrackingPending,
	"not picked":        domain.TrackingPending,
	"pickup scheduled":  domain.TrackingPending,
	"open":              domain.TrackingPending,
	"picked up":         domain.TrackingPicked,
	"pickup done":       domain.TrackingPicked,
	"picked":            domain.TrackingPicked,
	"in transit":        domain.TrackingInTransit,
	"dispatched":        domain.TrackingInTransit,
	"out for delivery":  domain.TrackingInTransit,
	// The carrier reports "Pending" for a scanned parcel not yet delivered.
	"pending":           domain.TrackingInTransit,
	"reached at hub":    domain.TrackingInTransit,
	"delivered":         domain.TrackingDelivered,
	"rto":               domain.TrackingFailed,
	"returned":          domain.TrackingFailed,
	"lost":              domain.TrackingFailed,
	"cancelled":         domain.TrackingFailed,
	"undelivered":       domain.TrackingFailed,
	"failed":            domain.TrackingFailed,
}

// MapStatus translates a carrier status label onto the order tracking
// vocabulary. Unknown labels map to pending.
func MapStatus(carrierStatus string) domain.TrackingStatus {
	key := strings.ToLower(strings.TrimSpace(carrierStatus))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	if status, ok := carrierStatuses[key]; ok {
		return status
	}
	if strings.HasPrefix(key, "rto") {
		return domain.TrackingFailed
	}
	return domain.TrackingPending
}
