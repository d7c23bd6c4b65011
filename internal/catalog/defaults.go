package catalog

// Default tier ids
const (
	TierSedan = "sedan"
	TierSUV   = "suv"
	TierVan   = "van"
)

// DefaultTiers returns the fixed vehicle tier set
func DefaultTiers() []VehicleTier {
	return []VehicleTier{
		{ID: TierSedan, Name: "Sedan", Capacity: "Up to 2 suitcases", Surcharge: 10},
		{ID: TierSUV, Name: "SUV", Capacity: "Up to 4 suitcases", Surcharge: 20},
		{ID: TierVan, Name: "Van", Capacity: "Up to 8 suitcases", Surcharge: 30},
	}
}

// DefaultServices returns the standard service offering with its default rates
func DefaultServices() []ServiceDefinition {
	surcharges := make(map[string]float64)
	for _, t := range DefaultTiers() {
		surcharges[t.ID] = t.Surcharge
	}

	return []ServiceDefinition{
		{
			ID:           "parcel-delivery",
			Kind:         KindParcelDelivery,
			Title:        "Parcel Delivery Service",
			Description:  "Fast, reliable, and secure delivery of your packages across the city and beyond.",
			PriceFormula: "Distance (km) × $2 + Weight (kg) × $1.5",
			Features: []string{
				"Real-time package tracking",
				"Secure handling of packages",
				"Same-day delivery for local orders",
				"Insurance coverage available",
				"Proof of delivery confirmation",
			},
			RequiredFactors: []Factor{FactorWeight},
			Rates:           Rates{PerKm: 2.0, PerKg: 1.5},
		},
		{
			ID:           "airport-pickup",
			Kind:         KindAirportPickup,
			Title:        "Airport Pickup Service",
			Description:  "Comfortable and convenient transportation from the airport to your preferred destination.",
			PriceFormula: "Distance (km) × $3 + Number of Passengers × $5",
			Features: []string{
				"Flight tracking for accurate pickup timing",
				"Meet and greet service available",
				"Spacious vehicles for luggage",
				"Professional and courteous drivers",
				"24/7 service availability",
			},
			RequiredFactors: []Factor{FactorPersonCount},
			Rates:           Rates{PerKm: 3.0, PerPerson: 5.0},
		},
		{
			ID:           "student-pickup",
			Kind:         KindStudentPickup,
			Title:        "Student Pickup Service",
			Description:  "Specialized moving service for students relocating to a new accommodation or campus.",
			PriceFormula: "Distance (km) × $2 + Vehicle Type Surcharge",
			Features: []string{
				"Special student discounts available",
				"Assistance with loading and unloading",
				"Multiple vehicle options",
				"Experienced in campus regulations",
				"Weekend and holiday availability",
			},
			RequiredFactors: []Factor{FactorVehicleTier},
			Rates:           Rates{PerKm: 2.0},
			Surcharges:      surcharges,
		},
	}
}

var defaultCatalog = New(DefaultServices(), DefaultTiers())

// Default returns the process-wide catalog built from the default offering
func Default() *Catalog {
	return defaultCatalog
}
