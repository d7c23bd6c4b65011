package booking

// Status is the lifecycle state of a booking session
type Status string

const (
	StatusDraft             Status = "draft"
	StatusResolvingDistance Status = "resolving_distance"
	StatusQuoteReady        Status = "quote_ready"
	StatusScheduleSelected  Status = "schedule_selected"
	StatusConfirmed         Status = "confirmed"
	StatusFailed            Status = "failed"
	StatusAbandoned         Status = "abandoned"
)

// validTransitions defines the session state machine. Reverting to draft on
// a request change is allowed from every open state.
var validTransitions = map[Status][]Status{
	StatusDraft:             {StatusResolvingDistance, StatusAbandoned},
	StatusResolvingDistance: {StatusQuoteReady, StatusFailed, StatusDraft, StatusAbandoned},
	StatusQuoteReady:        {StatusScheduleSelected, StatusDraft, StatusAbandoned},
	StatusScheduleSelected:  {StatusScheduleSelected, StatusConfirmed, StatusDraft, StatusAbandoned},
	StatusConfirmed:         {},
	StatusFailed:            {},
	StatusAbandoned:         {},
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}
