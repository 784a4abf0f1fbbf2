package appointments

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the closed set of appointment states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
	StatusAttended  Status = "attended"
)

// transitions lists the allowed next states. Terminal states have none.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusAttended, StatusCancelled, StatusNoShow},
	StatusCancelled: nil,
	StatusNoShow:    nil,
	StatusAttended:  nil,
}

// ParseStatus accepts the lowercase wire names.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("appointments: unknown status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the five states.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether s -> to is in the transition table.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the states reachable from s.
func (s Status) Next() []Status {
	return append([]Status(nil), transitions[s]...)
}

// OccupiesSlot reports whether an appointment in this state holds its time window.
func (s Status) OccupiesSlot() bool {
	return s != StatusCancelled
}

func (s Status) String() string { return string(s) }

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
