package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBookingRepository implements BookingRepository using in-memory maps
type MemoryBookingRepository struct {
	bookings map[string]*BookingRecord
	mu       sync.RWMutex
}

// NewMemoryBookingRepository creates a new in-memory repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[string]*BookingRecord),
	}
}

func (m *MemoryBookingRepository) SaveBooking(ctx context.Context, record *BookingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bookings[record.ID]; exists {
		return fmt.Errorf("%w: %s", ErrBookingExists, record.ID)
	}

	stored := *record
	m.bookings[record.ID] = &stored
	return nil
}

func (m *MemoryBookingRepository) GetBooking(ctx context.Context, bookingID string) (*BookingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.bookings[bookingID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
	}

	out := *record
	return &out, nil
}

func (m *MemoryBookingRepository) ListBookingsByUser(ctx context.Context, userID string) ([]*BookingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*BookingRecord
	for _, record := range m.bookings {
		if record.UserID == userID {
			out := *record
			result = append(result, &out)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ConfirmedAt.After(result[j].ConfirmedAt)
	})

	return result, nil
}
