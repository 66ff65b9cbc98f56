package shipping

import (
	"errors"
	"fmt"

	"github.com/dejobratic/storefront/pkg/circuitbreaker"
)

// CodePickupLocationNotReady is returned by the carrier when the warehouse
// pickup location has not been registered on its side yet.
const CodePickupLocationNotReady = "PICKUP_LOCATION_NOT_READY"

// ErrNoShipment is returned when tracking is requested for an order without a waybill.
var ErrNoShipment = errors.New("order has no shipment yet")

// CarrierError is a failed call to the carrier.
type CarrierError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *CarrierError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("carrier %s failed (%s): %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("carrier %s failed: %s", e.Op, e.Message)
}

// IsRetryable reports whether err is a transient carrier failure.
func IsRetryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	var cerr *CarrierError
	if errors.As(err, &cerr) {
		return cerr.Retryable
	}
	return false
}
