package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Coordinate is a geocoded point
type Coordinate struct {
	Lat float64
	Lng float64
}

// geocodeResult is one entry of a Nominatim-style search response
type geocodeResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// routeResponse represents the response from an OSRM-compatible router
type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// HTTPResolver resolves distances by geocoding both addresses and asking a
// router for the driving distance between them.
type HTTPResolver struct {
	geocoderURL string
	routerURL   string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewHTTPResolver creates a resolver. ratePerSec bounds outbound calls; zero
// disables limiting.
func NewHTTPResolver(geocoderURL, routerURL string, timeout time.Duration, ratePerSec float64) *HTTPResolver {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}

	return &HTTPResolver{
		geocoderURL: strings.TrimRight(geocoderURL, "/"),
		routerURL:   strings.TrimRight(routerURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Resolve geocodes pickup and destination and returns the route distance in km
func (r *HTTPResolver) Resolve(ctx context.Context, pickup, destination string) (Distance, error) {
	pickup = strings.TrimSpace(pickup)
	destination = strings.TrimSpace(destination)
	if pickup == "" || destination == "" {
		return Distance{}, fmt.Errorf("%w: pickup and destination are required", ErrUnresolvableLocation)
	}

	from, err := r.geocode(ctx, pickup)
	if err != nil {
		return Distance{}, err
	}
	to, err := r.geocode(ctx, destination)
	if err != nil {
		return Distance{}, err
	}

	km, err := r.routeDistance(ctx, from, to)
	if err != nil {
		if ctx.Err() != nil {
			return Distance{}, ctx.Err()
		}
		// Router failures fall back to the great-circle distance
		slog.Warn("Routing failed, using straight-line distance",
			"error", err,
			"pickup", pickup,
			"destination", destination)
		km = haversineDistance(from, to)
	}

	return Distance{
		Pickup:      pickup,
		Destination: destination,
		Kilometers:  math.Round(km*100) / 100,
	}, nil
}

func (r *HTTPResolver) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrResolverUnavailable, err)
	}
	return nil
}

func (r *HTTPResolver) geocode(ctx context.Context, address string) (Coordinate, error) {
	if err := r.wait(ctx); err != nil {
		return Coordinate{}, err
	}

	params := url.Values{}
	params.Add("q", address)
	params.Add("format", "json")
	params.Add("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/search?%s", r.geocoderURL, params.Encode()), nil)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %v", ErrResolverUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Coordinate{}, ctx.Err()
		}
		return Coordinate{}, fmt.Errorf("%w: geocoder request failed: %v", ErrResolverUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
			return Coordinate{}, fmt.Errorf("%w: %q", ErrUnresolvableLocation, address)
		}
		return Coordinate{}, fmt.Errorf("%w: geocoder returned status %d", ErrResolverUnavailable, resp.StatusCode)
	}

	var results []geocodeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Coordinate{}, fmt.Errorf("%w: invalid geocoder response: %v", ErrResolverUnavailable, err)
	}
	if len(results) == 0 {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrUnresolvableLocation, address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: invalid latitude %q", ErrResolverUnavailable, results[0].Lat)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: invalid longitude %q", ErrResolverUnavailable, results[0].Lon)
	}

	return Coordinate{Lat: lat, Lng: lng}, nil
}

func (r *HTTPResolver) routeDistance(ctx context.Context, from, to Coordinate) (float64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}

	// OSRM takes lng,lat pairs
	routeURL := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		r.routerURL, from.Lng, from.Lat, to.Lng, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, routeURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("router returned status %d", resp.StatusCode)
	}

	var routeResp routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&routeResp); err != nil {
		return 0, err
	}
	if len(routeResp.Routes) == 0 {
		return 0, fmt.Errorf("router returned no routes, code %q", routeResp.Code)
	}

	return routeResp.Routes[0].Distance / 1000, nil
}

// haversineDistance calculates distance between two points in kilometers
func haversineDistance(from, to Coordinate) float64 {
	const R = 6371 // Earth's radius in kilometers

	dLat := (to.Lat - from.Lat) * (math.Pi / 180)
	dLng := (to.Lng - from.Lng) * (math.Pi / 180)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(from.Lat*(math.Pi/180))*math.Cos(to.Lat*(math.Pi/180))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}
