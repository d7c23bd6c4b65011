package quote

import (
	"fmt"
	"time"

	"booking-service/internal/catalog"

	"github.com/shopspring/decimal"
)

// Quote is a price derived from one specific Request and resolved distance
type Quote struct {
	Request    Request   `json:"request" dynamodbav:"request"`
	DistanceKm float64   `json:"distance_km" dynamodbav:"distance_km"`
	Price      float64   `json:"price" dynamodbav:"price"`
	ComputedAt time.Time `json:"computed_at" dynamodbav:"computed_at"`
}

// DerivedFrom reports whether the quote is still valid for req
func (q Quote) DerivedFrom(req Request) bool {
	return q.Request.Equal(req)
}

// Compute prices req for the given service over distanceKm. It is pure apart
// from stamping the result with at.
//
// Pricing formulas:
//   - parcel-delivery: distance × per-km rate + weight × per-kg rate
//   - airport-pickup:  distance × per-km rate + passengers × per-person rate
//   - student-pickup:  distance × per-km rate + vehicle tier surcharge
//
// The total is rounded half-up to two decimals.
func Compute(def catalog.ServiceDefinition, req Request, distanceKm float64, at time.Time) (Quote, error) {
	if distanceKm < 0 {
		return Quote{}, fmt.Errorf("%w: distance must not be negative", ErrInvalidFactor)
	}

	req = req.Normalize(def)
	if err := req.Validate(def); err != nil {
		return Quote{}, err
	}

	distanceFare := decimal.NewFromFloat(distanceKm).Mul(decimal.NewFromFloat(def.Rates.PerKm))

	var total decimal.Decimal
	switch def.Kind {
	case catalog.KindParcelDelivery:
		weight := decimal.NewFromFloat(*req.Factors.WeightKg)
		total = distanceFare.Add(weight.Mul(decimal.NewFromFloat(def.Rates.PerKg)))
	case catalog.KindAirportPickup:
		persons := decimal.NewFromInt(int64(*req.Factors.PersonCount))
		total = distanceFare.Add(persons.Mul(decimal.NewFromFloat(def.Rates.PerPerson)))
	case catalog.KindStudentPickup:
		surcharge, ok := def.Surcharges[*req.Factors.VehicleTierID]
		if !ok {
			return Quote{}, fmt.Errorf("%w: %q", ErrUnknownVehicleTier, *req.Factors.VehicleTierID)
		}
		total = distanceFare.Add(decimal.NewFromFloat(surcharge))
	default:
		return Quote{}, fmt.Errorf("unsupported service kind %s", def.Kind)
	}

	return Quote{
		Request:    req,
		DistanceKm: distanceKm,
		Price:      roundPrice(total),
		ComputedAt: at,
	}, nil
}

// roundPrice rounds half away from zero, which is half-up for the
// non-negative totals produced here.
func roundPrice(v decimal.Decimal) float64 {
	f, _ := v.Round(2).Float64()
	return f
}
