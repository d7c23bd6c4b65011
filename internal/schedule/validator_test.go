package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reference = time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

func TestTimeSlots(t *testing.T) {
	slots := TimeSlots()

	require.Len(t, slots, 13)
	assert.Equal(t, TimeSlot{Value: "08:00", Label: "08:00 AM"}, slots[0])
	assert.Equal(t, TimeSlot{Value: "12:00", Label: "12:00 PM"}, slots[4])
	assert.Equal(t, TimeSlot{Value: "20:00", Label: "08:00 PM"}, slots[12])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		slot    Slot
		wantErr error
	}{
		{"today earliest slot", Slot{Date: "2026-10-18", Time: "08:00"}, nil},
		{"today latest slot", Slot{Date: "2026-10-18", Time: "20:00"}, nil},
		{"tomorrow", Slot{Date: "2026-10-19", Time: "13:00"}, nil},
		{"next year", Slot{Date: "2027-01-02", Time: "09:00"}, nil},
		{"yesterday", Slot{Date: "2026-10-17", Time: "10:00"}, ErrDateInPast},
		{"yesterday with invalid time", Slot{Date: "2026-10-17", Time: "23:00"}, ErrDateInPast},
		{"last year", Slot{Date: "2025-10-18", Time: "10:00"}, ErrDateInPast},
		{"before opening", Slot{Date: "2026-10-19", Time: "07:00"}, ErrInvalidTimeSlot},
		{"after closing", Slot{Date: "2026-10-19", Time: "21:00"}, ErrInvalidTimeSlot},
		{"half hour", Slot{Date: "2026-10-19", Time: "09:30"}, ErrInvalidTimeSlot},
		{"display label", Slot{Date: "2026-10-19", Time: "09:00 AM"}, nil},
		{"lowercase afternoon label", Slot{Date: "2026-10-19", Time: "02:00 pm"}, nil},
		{"label outside hours", Slot{Date: "2026-10-19", Time: "09:00 PM"}, ErrInvalidTimeSlot},
		{"empty time", Slot{Date: "2026-10-19"}, ErrInvalidTimeSlot},
		{"bad date", Slot{Date: "19/10/2026", Time: "09:00"}, ErrInvalidDate},
		{"empty date", Slot{Time: "09:00"}, ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.slot, reference)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_PastDateIndependentOfTime(t *testing.T) {
	yesterday := reference.AddDate(0, 0, -1).Format(DateLayout)

	for _, s := range TimeSlots() {
		err := Validate(Slot{Date: yesterday, Time: s.Value}, reference)
		assert.ErrorIs(t, err, ErrDateInPast, s.Value)
	}
}

func TestValidate_UsesReferenceLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2026-10-18 20:00 UTC is already 2026-10-19 in Tokyo
	ref := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC).In(tokyo)

	assert.ErrorIs(t, Validate(Slot{Date: "2026-10-18", Time: "10:00"}, ref), ErrDateInPast)
	assert.NoError(t, Validate(Slot{Date: "2026-10-19", Time: "10:00"}, ref))
}

func TestSlot_Canonical(t *testing.T) {
	assert.Equal(t, "14:00", Slot{Date: "2026-10-19", Time: "02:00 PM"}.Canonical().Time)
	assert.Equal(t, "08:00", Slot{Date: "2026-10-19", Time: " 08:00 "}.Canonical().Time)
	assert.Equal(t, "23:00", Slot{Date: "2026-10-19", Time: "23:00"}.Canonical().Time)
}
