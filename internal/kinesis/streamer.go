package kinesis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"booking-service/internal/booking"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
)

// Session lifecycle event types
const (
	EventQuoted    = "quoted"
	EventConfirmed = "confirmed"
	EventFailed    = "failed"
	EventAbandoned = "abandoned"
)

// DefaultPublishTimeout bounds a single PutRecord call
const DefaultPublishTimeout = 5 * time.Second

// KinesisAPI is the subset of the Kinesis client used by the streamer
type KinesisAPI interface {
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

type Streamer struct {
	client     KinesisAPI
	streamName string
	timeout    time.Duration
	now        func() time.Time
}

type SessionEvent struct {
	SessionID     string    `json:"session_id"`
	EventType     string    `json:"event_type"` // quoted, confirmed, failed, abandoned
	Timestamp     time.Time `json:"timestamp"`
	ServiceID     string    `json:"service_id"`
	Status        string    `json:"status"`
	Revision      int       `json:"revision"`
	Pickup        string    `json:"pickup_location,omitempty"`
	Destination   string    `json:"destination_location,omitempty"`
	DistanceKm    *float64  `json:"distance_km,omitempty"`
	Price         *float64  `json:"price,omitempty"`
	SlotDate      string    `json:"slot_date,omitempty"`
	SlotTime      string    `json:"slot_time,omitempty"`
	BookingID     string    `json:"booking_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

func NewStreamer(client KinesisAPI, streamName string) *Streamer {
	return &Streamer{
		client:     client,
		streamName: streamName,
		timeout:    DefaultPublishTimeout,
		now:        time.Now,
	}
}

// SetPublishTimeout overrides the per-record deadline
func (s *Streamer) SetPublishTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

// NewSessionEvent builds the record payload for a session snapshot
func NewSessionEvent(eventType string, s booking.Session, at time.Time) SessionEvent {
	event := SessionEvent{
		SessionID:     s.ID,
		EventType:     eventType,
		Timestamp:     at.UTC(),
		ServiceID:     s.ServiceID,
		Status:        s.Status.String(),
		Revision:      s.Revision,
		Pickup:        s.Request.PickupLocation,
		Destination:   s.Request.DestinationLocation,
		BookingID:     s.BookingID,
		UserID:        s.UserID,
		FailureReason: s.FailureReason,
	}
	if s.Quote != nil {
		km, price := s.Quote.DistanceKm, s.Quote.Price
		event.DistanceKm = &km
		event.Price = &price
	}
	if s.Slot != nil {
		event.SlotDate = s.Slot.Date
		event.SlotTime = s.Slot.Time
	}
	return event
}

// StreamSessionEvent publishes a lifecycle event. Failures are logged and
// never surface to the booking flow.
func (s *Streamer) StreamSessionEvent(ctx context.Context, eventType string, session booking.Session) {
	if s == nil || s.client == nil {
		return // Kinesis not enabled
	}

	event := NewSessionEvent(eventType, session, s.now())

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal session event", "session_id", session.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	partitionKey := session.ID
	_, err = s.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   &s.streamName,
		Data:         data,
		PartitionKey: &partitionKey,
	})

	if err != nil {
		slog.Error("Failed to stream session event", "session_id", session.ID, "event_type", eventType, "error", err)
	} else {
		slog.Debug("Streamed session event", "session_id", session.ID, "event_type", eventType)
	}
}
