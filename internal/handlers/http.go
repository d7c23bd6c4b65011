package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"booking-service/internal/auth"
	"booking-service/internal/booking"
	"booking-service/internal/catalog"
	"booking-service/internal/quote"
	"booking-service/internal/schedule"
	"booking-service/internal/service"
	"booking-service/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// HTTPHandler handles HTTP requests for the booking service
type HTTPHandler struct {
	bookingService *service.BookingService
	validate       *validator.Validate
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(bookingService *service.BookingService) *HTTPHandler {
	return &HTTPHandler{
		bookingService: bookingService,
		validate:       validator.New(),
	}
}

// RegisterRoutes sets up HTTP routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/services", h.ListServices).Methods("GET")
	router.HandleFunc("/services/{id}", h.GetService).Methods("GET")
	router.HandleFunc("/vehicle-tiers", h.ListVehicleTiers).Methods("GET")
	router.HandleFunc("/schedule/slots", h.ListTimeSlots).Methods("GET")
	router.HandleFunc("/sessions", h.StartSession).Methods("POST")
	router.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/sessions/{id}", h.AbandonSession).Methods("DELETE")
	router.HandleFunc("/sessions/{id}/request", h.UpdateRequest).Methods("PUT")
	router.HandleFunc("/sessions/{id}/quote", h.ComputeQuote).Methods("POST")
	router.HandleFunc("/sessions/{id}/schedule", h.SelectSchedule).Methods("POST")
	router.HandleFunc("/sessions/{id}/confirm", h.ConfirmBooking).Methods("POST")
	router.HandleFunc("/bookings", h.ListBookings).Methods("GET")
	router.HandleFunc("/bookings/{id}", h.GetBooking).Methods("GET")
}

// Health returns service health status
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"active_sessions": h.bookingService.ActiveSessionCount(),
	})
}

// ListServices returns the service catalog
func (h *HTTPHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bookingService.Catalog().Services())
}

// GetService returns one service definition
func (h *HTTPHandler) GetService(w http.ResponseWriter, r *http.Request) {
	def, err := h.bookingService.Catalog().Lookup(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// ListVehicleTiers returns the vehicle tiers for student pickups
func (h *HTTPHandler) ListVehicleTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bookingService.Catalog().Tiers())
}

// ListTimeSlots returns the bookable pickup times and the earliest date
func (h *HTTPHandler) ListTimeSlots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"earliest_date": time.Now().Format(schedule.DateLayout),
		"time_slots":    schedule.TimeSlots(),
	})
}

// StartSessionRequest represents a session creation request
type StartSessionRequest struct {
	ServiceID string `json:"service_id" validate:"required"`
}

// QuoteRequest represents the locations and factors of a quote. Factor
// bounds are checked per service after irrelevant factors are dropped.
type QuoteRequest struct {
	PickupLocation      string   `json:"pickup_location" validate:"max=500"`
	DestinationLocation string   `json:"destination_location" validate:"max=500"`
	WeightKg            *float64 `json:"weight_kg,omitempty"`
	PersonCount         *int     `json:"person_count,omitempty"`
	VehicleTierID       *string  `json:"vehicle_tier_id,omitempty" validate:"omitempty,max=32"`
}

func (q QuoteRequest) toDomain() quote.Request {
	return quote.Request{
		PickupLocation:      q.PickupLocation,
		DestinationLocation: q.DestinationLocation,
		Factors: quote.Factors{
			WeightKg:      q.WeightKg,
			PersonCount:   q.PersonCount,
			VehicleTierID: q.VehicleTierID,
		},
	}
}

// ScheduleRequest represents a slot selection
type ScheduleRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required"`
}

// StartSession opens a booking session for a service
func (h *HTTPHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.bookingService.StartSession(r.Context(), req.ServiceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GetSession returns the current state of a session
func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.bookingService.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateRequest stores a draft request without pricing it
func (h *HTTPHandler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.bookingService.UpdateRequest(r.Context(), mux.Vars(r)["id"], req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ComputeQuote prices the request. With ?async=true it only starts the
// resolution and returns the session; clients then poll GET /sessions/{id}.
func (h *HTTPHandler) ComputeQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	sessionID := mux.Vars(r)["id"]

	if r.URL.Query().Get("async") == "true" {
		s, err := h.bookingService.SubmitQuote(r.Context(), sessionID, req.toDomain())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, s)
		return
	}

	q, err := h.bookingService.ComputeQuote(r.Context(), sessionID, req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// SelectSchedule attaches a pickup slot
func (h *HTTPHandler) SelectSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.bookingService.SelectSchedule(r.Context(), mux.Vars(r)["id"], schedule.Slot{Date: req.Date, Time: req.Time})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ConfirmBooking confirms the session and returns the stored booking
func (h *HTTPHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	record, err := h.bookingService.ConfirmBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// AbandonSession closes a session without booking
func (h *HTTPHandler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.bookingService.AbandonSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListBookings returns the caller's bookings
func (h *HTTPHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	records, err := h.bookingService.ListBookings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetBooking retrieves a specific booking
func (h *HTTPHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	record, err := h.bookingService.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

// statusClientClosedRequest is reported when the caller went away before the
// response was ready
const statusClientClosedRequest = 499

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, storage.ErrBookingNotFound),
		errors.Is(err, catalog.ErrServiceNotFound),
		errors.Is(err, catalog.ErrTierNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case booking.IsResolver(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrSessionClosed),
		errors.Is(err, booking.ErrStaleResult):
		return http.StatusConflict
	case booking.IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
