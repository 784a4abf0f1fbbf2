package schedule

import (
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

// Week holds up to seven rules for one doctor, indexed by weekday.
type Week struct {
	doctorID string
	days     [7]*WeeklyRule
}

// NewWeek validates rules and indexes them by weekday. Two rules for the same
// day are rejected.
func NewWeek(doctorID string, rules []WeeklyRule) (*Week, error) {
	w := &Week{doctorID: doctorID}
	for i := range rules {
		rule := rules[i]
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if w.days[rule.DayOfWeek] != nil {
			return nil, apperr.New(apperr.KindScheduleConfig, "schedule.week", "duplicate rule for weekday").
				WithField("field", "day_of_week").
				WithField("day_of_week", rule.DayOfWeek.String())
		}
		w.days[rule.DayOfWeek] = &rule
	}
	return w, nil
}

// DoctorID returns the doctor the week belongs to.
func (w *Week) DoctorID() string {
	if w == nil {
		return ""
	}
	return w.doctorID
}

// Rule returns the active rule for day, if any.
func (w *Week) Rule(day time.Weekday) (WeeklyRule, bool) {
	if w == nil || day < time.Sunday || day > time.Saturday {
		return WeeklyRule{}, false
	}
	r := w.days[day]
	if r == nil || !r.Active {
		return WeeklyRule{}, false
	}
	return *r, true
}

// Rules returns every configured rule, active or not, Sunday first.
func (w *Week) Rules() []WeeklyRule {
	if w == nil {
		return nil
	}
	out := make([]WeeklyRule, 0, 7)
	for _, r := range w.days {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// IsWorkingMinute answers whether minute of day on weekday is bookable time.
func (w *Week) IsWorkingMinute(day time.Weekday, minute int) bool {
	rule, ok := w.Rule(day)
	if !ok {
		return false
	}
	return rule.IsWorkingMinute(minute)
}
