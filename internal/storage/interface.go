package storage

import (
	"context"
	"errors"
	"time"

	"booking-service/internal/quote"
	"booking-service/internal/schedule"
)

// Common errors
var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrBookingExists   = errors.New("booking already exists")
)

// BookingRecord is the confirmed booking handed off for persistence
type BookingRecord struct {
	ID          string        `json:"id" dynamodbav:"id"`
	SessionID   string        `json:"session_id" dynamodbav:"session_id"`
	UserID      string        `json:"user_id,omitempty" dynamodbav:"user_id,omitempty"`
	ServiceID   string        `json:"service_id" dynamodbav:"service_id"`
	Quote       quote.Quote   `json:"quote" dynamodbav:"quote"`
	Slot        schedule.Slot `json:"slot" dynamodbav:"slot"`
	ConfirmedAt time.Time     `json:"confirmed_at" dynamodbav:"confirmed_at"`
}

// BookingRepository defines the interface for booking persistence
type BookingRepository interface {
	// SaveBooking stores a confirmed booking, failing if the id exists
	SaveBooking(ctx context.Context, record *BookingRecord) error

	// GetBooking retrieves a booking by ID
	GetBooking(ctx context.Context, bookingID string) (*BookingRecord, error)

	// ListBookingsByUser returns a user's bookings, newest first
	ListBookingsByUser(ctx context.Context, userID string) ([]*BookingRecord, error)
}
