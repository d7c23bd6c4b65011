package quote

import (
	"errors"
	"fmt"
	"strings"

	"booking-service/internal/catalog"
)

// Validation errors
var (
	ErrMissingLocation    = errors.New("pickup and destination locations are required")
	ErrMissingFactor      = errors.New("missing required factor")
	ErrInvalidFactor      = errors.New("invalid factor value")
	ErrUnknownVehicleTier = errors.New("unknown vehicle tier")
)

// Person count bounds for airport pickups
const (
	MinPersonCount = 1
	MaxPersonCount = 8
)

// Factors holds the optional service-specific inputs
type Factors struct {
	WeightKg      *float64 `json:"weight_kg,omitempty" dynamodbav:"weight_kg,omitempty"`
	PersonCount   *int     `json:"person_count,omitempty" dynamodbav:"person_count,omitempty"`
	VehicleTierID *string  `json:"vehicle_tier_id,omitempty" dynamodbav:"vehicle_tier_id,omitempty"`
}

// Request is everything needed to price one trip
type Request struct {
	ServiceID           string  `json:"service_id" dynamodbav:"service_id"`
	PickupLocation      string  `json:"pickup_location" dynamodbav:"pickup_location"`
	DestinationLocation string  `json:"destination_location" dynamodbav:"destination_location"`
	Factors             Factors `json:"factors" dynamodbav:"factors"`
}

// Normalize trims the locations and drops every factor the service does not
// require, so ignored inputs never affect equality.
func (r Request) Normalize(def catalog.ServiceDefinition) Request {
	out := Request{
		ServiceID:           def.ID,
		PickupLocation:      strings.TrimSpace(r.PickupLocation),
		DestinationLocation: strings.TrimSpace(r.DestinationLocation),
	}
	if def.Requires(catalog.FactorWeight) && r.Factors.WeightKg != nil {
		w := *r.Factors.WeightKg
		out.Factors.WeightKg = &w
	}
	if def.Requires(catalog.FactorPersonCount) && r.Factors.PersonCount != nil {
		n := *r.Factors.PersonCount
		out.Factors.PersonCount = &n
	}
	if def.Requires(catalog.FactorVehicleTier) && r.Factors.VehicleTierID != nil {
		id := strings.TrimSpace(*r.Factors.VehicleTierID)
		out.Factors.VehicleTierID = &id
	}
	return out
}

// Validate checks that the request is complete for the given service. Tier
// membership is checked by the calculator.
func (r Request) Validate(def catalog.ServiceDefinition) error {
	if strings.TrimSpace(r.PickupLocation) == "" || strings.TrimSpace(r.DestinationLocation) == "" {
		return ErrMissingLocation
	}

	for _, f := range def.RequiredFactors {
		switch f {
		case catalog.FactorWeight:
			if r.Factors.WeightKg == nil {
				return fmt.Errorf("%w: %s", ErrMissingFactor, f)
			}
			if *r.Factors.WeightKg < 0 {
				return fmt.Errorf("%w: weight must not be negative", ErrInvalidFactor)
			}
		case catalog.FactorPersonCount:
			if r.Factors.PersonCount == nil {
				return fmt.Errorf("%w: %s", ErrMissingFactor, f)
			}
			if n := *r.Factors.PersonCount; n < MinPersonCount || n > MaxPersonCount {
				return fmt.Errorf("%w: person count must be between %d and %d", ErrInvalidFactor, MinPersonCount, MaxPersonCount)
			}
		case catalog.FactorVehicleTier:
			if r.Factors.VehicleTierID == nil || strings.TrimSpace(*r.Factors.VehicleTierID) == "" {
				return fmt.Errorf("%w: %s", ErrMissingFactor, f)
			}
		}
	}

	return nil
}

// Equal reports whether two requests carry the same locations and factors
func (r Request) Equal(o Request) bool {
	return r.ServiceID == o.ServiceID &&
		r.PickupLocation == o.PickupLocation &&
		r.DestinationLocation == o.DestinationLocation &&
		equalPtr(r.Factors.WeightKg, o.Factors.WeightKg) &&
		equalPtr(r.Factors.PersonCount, o.Factors.PersonCount) &&
		equalPtr(r.Factors.VehicleTierID, o.Factors.VehicleTierID)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
