// Package slots derives bookable time slots from a doctor's weekly schedule,
// blocked periods and existing appointments. Slots are never stored; every
// call recomputes them from its inputs.
package slots

import (
	"encoding/json"
	"iter"
	"time"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/blocked"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// Reason explains why a slot is unavailable.
type Reason string

const (
	ReasonBlocked      Reason = "blocked"
	ReasonBooked       Reason = "booked"
	ReasonPast         Reason = "past"
	ReasonOutsideHours Reason = "outside_hours"
)

// Slot is a candidate appointment window.
type Slot struct {
	DoctorID  string
	Start     time.Time
	Minutes   int
	Available bool
	Reason    Reason
}

// End is Start + Minutes.
func (s Slot) End() time.Time {
	return s.Start.Add(time.Duration(s.Minutes) * time.Minute)
}

// Date is the civil date of the slot, YYYY-MM-DD.
func (s Slot) Date() string { return s.Start.Format(time.DateOnly) }

// Time is the civil start time, HH:MM.
func (s Slot) Time() string { return s.Start.Format("15:04") }

func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DoctorID  string    `json:"doctor_id,omitempty"`
		Date      string    `json:"date"`
		Time      string    `json:"time"`
		Start     time.Time `json:"start"`
		Minutes   int       `json:"duration_minutes"`
		Available bool      `json:"available"`
		Reason    Reason    `json:"reason,omitempty"`
	}{s.DoctorID, s.Date(), s.Time(), s.Start, s.Minutes, s.Available, s.Reason})
}

// Input is everything the generator reads. Now is injected so output depends
// only on the arguments.
type Input struct {
	DoctorID     string
	Week         *schedule.Week
	Blocked      *blocked.Calendar
	Appointments []appointments.Appointment
	// From and To bound the civil dates walked, both inclusive.
	From     time.Time
	To       time.Time
	Now      time.Time
	Location *time.Location
}

func (in Input) location() *time.Location {
	if in.Location != nil {
		return in.Location
	}
	return time.Local
}

// Generate yields the slots of every day in [From, To] in ascending order.
// Days without an active rule yield nothing; slots starting before Now are
// skipped. The sequence can be ranged any number of times.
func Generate(in Input) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		loc := in.location()
		first := civilDate(in.From.In(loc))
		last := civilDate(in.To.In(loc))
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			rule, ok := in.Week.Rule(day.Weekday())
			if !ok {
				continue
			}
			for _, c := range rule.SlotStarts() {
				start := clockOn(day, c)
				if start.Before(in.Now) {
					continue
				}
				if !yield(in.evaluate(start, rule.SlotMinutes)) {
					return
				}
			}
		}
	}
}

// Check re-derives availability for exactly one window. A start that is not
// on the rule's slot grid, or a window that leaves working time, is
// unavailable with ReasonOutsideHours.
func Check(in Input, start time.Time, minutes int) Slot {
	loc := in.location()
	start = start.In(loc)
	rule, ok := in.Week.Rule(start.Weekday())
	if !ok || minutes <= 0 || start.Second() != 0 || start.Nanosecond() != 0 {
		return Slot{DoctorID: in.DoctorID, Start: start, Minutes: minutes, Reason: ReasonOutsideHours}
	}
	at := schedule.Clock(start.Hour()*60 + start.Minute())
	if !onGrid(rule, at) || !rule.CoversWindow(at, minutes) {
		return Slot{DoctorID: in.DoctorID, Start: start, Minutes: minutes, Reason: ReasonOutsideHours}
	}
	if start.Before(in.Now) {
		return Slot{DoctorID: in.DoctorID, Start: start, Minutes: minutes, Reason: ReasonPast}
	}
	return in.evaluate(start, minutes)
}

func (in Input) evaluate(start time.Time, minutes int) Slot {
	s := Slot{DoctorID: in.DoctorID, Start: start, Minutes: minutes}
	end := s.End()
	switch {
	case start.Before(in.Now):
		s.Reason = ReasonPast
	case in.Blocked.IsBlocked(in.DoctorID, start, end):
		s.Reason = ReasonBlocked
	case in.booked(start, end):
		s.Reason = ReasonBooked
	default:
		s.Available = true
	}
	return s
}

func (in Input) booked(start, end time.Time) bool {
	for _, a := range in.Appointments {
		if a.DoctorID != "" && in.DoctorID != "" && a.DoctorID != in.DoctorID {
			continue
		}
		if a.Blocks(start, end) {
			return true
		}
	}
	return false
}

func onGrid(rule schedule.WeeklyRule, at schedule.Clock) bool {
	for _, c := range rule.SlotStarts() {
		if c == at {
			return true
		}
	}
	return false
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func clockOn(day time.Time, c schedule.Clock) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Minutes()/60, c.Minutes()%60, 0, 0, day.Location())
}

// Day groups one date's slots for display.
type Day struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

// ByDate collects seq into per-date groups, preserving order.
func ByDate(seq iter.Seq[Slot]) []Day {
	var out []Day
	for s := range seq {
		date := s.Date()
		if n := len(out); n == 0 || out[n-1].Date != date {
			out = append(out, Day{Date: date})
		}
		out[len(out)-1].Slots = append(out[len(out)-1].Slots, s)
	}
	return out
}

// FirstAvailable returns the earliest available slot in seq.
func FirstAvailable(seq iter.Seq[Slot]) (Slot, bool) {
	for s := range seq {
		if s.Available {
			return s, true
		}
	}
	return Slot{}, false
}
