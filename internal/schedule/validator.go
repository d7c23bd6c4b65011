package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Validation errors
var (
	ErrInvalidDate     = errors.New("invalid schedule date")
	ErrDateInPast      = errors.New("schedule date is in the past")
	ErrInvalidTimeSlot = errors.New("invalid time slot")
)

// DateLayout is the wire format of a slot date
const DateLayout = "2006-01-02"

// Slot is a calendar day plus one of the fixed hourly pickup times
type Slot struct {
	Date string `json:"date" dynamodbav:"date"`
	Time string `json:"time" dynamodbav:"time"`
}

// TimeSlot is one bookable pickup time with its display label
type TimeSlot struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Pickups run hourly from 08:00 to 20:00 inclusive
const (
	firstHour = 8
	lastHour  = 20
)

var timeSlots = buildTimeSlots()

func buildTimeSlots() []TimeSlot {
	slots := make([]TimeSlot, 0, lastHour-firstHour+1)
	for h := firstHour; h <= lastHour; h++ {
		t := time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC)
		slots = append(slots, TimeSlot{
			Value: t.Format("15:04"),
			Label: t.Format("03:04 PM"),
		})
	}
	return slots
}

// TimeSlots returns the bookable pickup times in order
func TimeSlots() []TimeSlot {
	return slices.Clone(timeSlots)
}

// ParseTimeSlot matches v against the bookable pickup times. Both the
// 24-hour value ("14:00") and the display label ("02:00 PM") are accepted.
func ParseTimeSlot(v string) (TimeSlot, bool) {
	v = strings.TrimSpace(v)
	for _, s := range timeSlots {
		if v == s.Value || strings.EqualFold(v, s.Label) {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// IsTimeSlot reports whether v is one of the bookable pickup times
func IsTimeSlot(v string) bool {
	_, ok := ParseTimeSlot(v)
	return ok
}

// Canonical returns the slot with its time in 24-hour form. Times that are
// not bookable are left unchanged.
func (s Slot) Canonical() Slot {
	if ts, ok := ParseTimeSlot(s.Time); ok {
		s.Time = ts.Value
	}
	return s
}

// Day parses the slot date as midnight in loc
func (s Slot) Day(loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s.Date)
	}
	return d, nil
}

// Validate checks slot against reference. The date is compared by calendar
// day in reference's location, so today is allowed and every earlier day is
// rejected regardless of the time.
func Validate(slot Slot, reference time.Time) error {
	day, err := slot.Day(reference.Location())
	if err != nil {
		return err
	}

	y, m, d := reference.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, reference.Location())
	if day.Before(today) {
		return fmt.Errorf("%w: %s is before %s", ErrDateInPast, slot.Date, today.Format(DateLayout))
	}

	if !IsTimeSlot(slot.Time) {
		return fmt.Errorf("%w: %q", ErrInvalidTimeSlot, slot.Time)
	}

	return nil
}
