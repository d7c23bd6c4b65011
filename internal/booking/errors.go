package booking

import (
	"errors"

	"booking-service/internal/catalog"
	"booking-service/internal/distance"
	"booking-service/internal/quote"
	"booking-service/internal/schedule"
)

// Session errors
var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrSessionClosed     = errors.New("session is closed")
	ErrStaleResult       = errors.New("distance result is stale")
	ErrQuoteRequired     = errors.New("a quote is required before confirming")
	ErrStaleQuote        = errors.New("quote no longer matches the request")
	ErrScheduleRequired  = errors.New("a schedule slot is required before confirming")
	ErrServiceMismatch   = errors.New("request service differs from session service")
)

var validationErrors = []error{
	quote.ErrMissingLocation,
	quote.ErrMissingFactor,
	quote.ErrInvalidFactor,
	quote.ErrUnknownVehicleTier,
	schedule.ErrInvalidDate,
	schedule.ErrDateInPast,
	schedule.ErrInvalidTimeSlot,
	catalog.ErrServiceNotFound,
	distance.ErrUnresolvableLocation,
	ErrQuoteRequired,
	ErrStaleQuote,
	ErrScheduleRequired,
	ErrServiceMismatch,
}

// IsValidation reports whether err is a user-correctable input problem
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsResolver reports whether err is a transient resolver failure that may
// succeed on retry
func IsResolver(err error) bool {
	return errors.Is(err, distance.ErrResolverUnavailable)
}
