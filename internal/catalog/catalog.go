package catalog

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Common errors
var (
	ErrServiceNotFound = errors.New("service not found")
	ErrTierNotFound    = errors.New("vehicle tier not found")
)

// Kind is the closed set of offered services. The quote calculator switches
// on it exhaustively.
type Kind int

const (
	KindParcelDelivery Kind = iota + 1
	KindAirportPickup
	KindStudentPickup
)

func (k Kind) String() string {
	switch k {
	case KindParcelDelivery:
		return "parcel-delivery"
	case KindAirportPickup:
		return "airport-pickup"
	case KindStudentPickup:
		return "student-pickup"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Factor names a service-specific pricing input
type Factor string

const (
	FactorWeight      Factor = "weight"
	FactorPersonCount Factor = "personCount"
	FactorVehicleTier Factor = "vehicleTier"
)

// VehicleTier is one of the fixed vehicle classes with a flat surcharge
type VehicleTier struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Capacity  string  `json:"capacity"`
	Surcharge float64 `json:"surcharge"`
}

// Rates holds the per-unit pricing parameters of a service
type Rates struct {
	PerKm     float64 `json:"per_km"`
	PerKg     float64 `json:"per_kg,omitempty"`
	PerPerson float64 `json:"per_person,omitempty"`
}

// ServiceDefinition describes one offered service, its required inputs and
// the parameters of its price formula.
type ServiceDefinition struct {
	ID              string             `json:"id"`
	Kind            Kind               `json:"-"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	PriceFormula    string             `json:"price_formula"`
	Features        []string           `json:"features"`
	RequiredFactors []Factor           `json:"required_factors"`
	Rates           Rates              `json:"rates"`
	Surcharges      map[string]float64 `json:"surcharges,omitempty"`
}

// Requires reports whether the factor must be supplied for this service
func (d ServiceDefinition) Requires(f Factor) bool {
	return slices.Contains(d.RequiredFactors, f)
}

func (d ServiceDefinition) clone() ServiceDefinition {
	d.Features = slices.Clone(d.Features)
	d.RequiredFactors = slices.Clone(d.RequiredFactors)
	d.Surcharges = maps.Clone(d.Surcharges)
	return d
}

// Catalog is a read-only registry of services and vehicle tiers. Lookups
// return copies so callers can never mutate the registry.
type Catalog struct {
	services     map[string]ServiceDefinition
	serviceOrder []string
	tiers        map[string]VehicleTier
	tierOrder    []string
}

// New builds a catalog from the given definitions, keeping their order for
// listing.
func New(services []ServiceDefinition, tiers []VehicleTier) *Catalog {
	c := &Catalog{
		services: make(map[string]ServiceDefinition, len(services)),
		tiers:    make(map[string]VehicleTier, len(tiers)),
	}
	for _, s := range services {
		c.services[s.ID] = s.clone()
		c.serviceOrder = append(c.serviceOrder, s.ID)
	}
	for _, t := range tiers {
		c.tiers[t.ID] = t
		c.tierOrder = append(c.tierOrder, t.ID)
	}
	return c
}

// Lookup returns the definition for a service id
func (c *Catalog) Lookup(serviceID string) (ServiceDefinition, error) {
	def, ok := c.services[serviceID]
	if !ok {
		return ServiceDefinition{}, fmt.Errorf("%w: %q", ErrServiceNotFound, serviceID)
	}
	return def.clone(), nil
}

// Tier returns a vehicle tier by id
func (c *Catalog) Tier(tierID string) (VehicleTier, error) {
	t, ok := c.tiers[tierID]
	if !ok {
		return VehicleTier{}, fmt.Errorf("%w: %q", ErrTierNotFound, tierID)
	}
	return t, nil
}

// Services lists every service in registration order
func (c *Catalog) Services() []ServiceDefinition {
	out := make([]ServiceDefinition, 0, len(c.serviceOrder))
	for _, id := range c.serviceOrder {
		out = append(out, c.services[id].clone())
	}
	return out
}

// Tiers lists every vehicle tier in registration order
func (c *Catalog) Tiers() []VehicleTier {
	out := make([]VehicleTier, 0, len(c.tierOrder))
	for _, id := range c.tierOrder {
		out = append(out, c.tiers[id])
	}
	return out
}
