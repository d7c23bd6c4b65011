package distance

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrUnresolvableLocation = errors.New("location could not be resolved")
	ErrResolverUnavailable  = errors.New("distance resolver unavailable")
)

// Distance is a resolved travel distance for one pickup/destination pair
type Distance struct {
	Pickup      string  `json:"pickup"`
	Destination string  `json:"destination"`
	Kilometers  float64 `json:"kilometers"`
}

// Resolver turns an address pair into a travel distance. Implementations
// must be idempotent for identical inputs and honor ctx cancellation.
type Resolver interface {
	Resolve(ctx context.Context, pickup, destination string) (Distance, error)
}
