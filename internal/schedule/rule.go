// Package schedule models a doctor's recurring weekly availability.
package schedule

import (
	"fmt"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

// ErrScheduleConfig matches any rejected rule via errors.Is.
var ErrScheduleConfig = apperr.New(apperr.KindScheduleConfig, "", "invalid weekly rule")

// WeeklyRule is the working-hours definition for one weekday of one doctor.
// Rules are deactivated rather than deleted.
type WeeklyRule struct {
	ID          string       `json:"id,omitempty"`
	DoctorID    string       `json:"doctor_id"`
	DayOfWeek   time.Weekday `json:"day_of_week"`
	Active      bool         `json:"active"`
	Start       Clock        `json:"start_time"`
	End         Clock        `json:"end_time"`
	BreakStart  *Clock       `json:"break_start,omitempty"`
	BreakEnd    *Clock       `json:"break_end,omitempty"`
	SlotMinutes int          `json:"slot_duration_minutes"`
}

// HasBreak reports whether both break bounds are set.
func (r WeeklyRule) HasBreak() bool {
	return r.BreakStart != nil && r.BreakEnd != nil
}

// Validate rejects malformed rules with a schedule_config error naming the field.
func (r WeeklyRule) Validate() error {
	switch {
	case r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday:
		return configError(r, "day_of_week", "day of week must be between 0 (Sunday) and 6 (Saturday)")
	case r.Start < 0 || r.End > MinutesPerDay:
		return configError(r, "start_time", "working hours must fall within the day")
	case r.Start >= r.End:
		return configError(r, "end_time", "start time must be before end time")
	case r.SlotMinutes <= 0:
		return configError(r, "slot_duration_minutes", "slot duration must be positive")
	case r.SlotMinutes > int(r.End-r.Start):
		return configError(r, "slot_duration_minutes", "slot duration is longer than the working day")
	}

	if (r.BreakStart == nil) != (r.BreakEnd == nil) {
		return configError(r, "break_end", "break needs both a start and an end")
	}
	if !r.HasBreak() {
		return nil
	}
	bs, be := *r.BreakStart, *r.BreakEnd
	switch {
	case bs <= r.Start:
		return configError(r, "break_start", "break must start after working hours begin")
	case be >= r.End:
		return configError(r, "break_end", "break must end before working hours end")
	case bs > be:
		return configError(r, "break_end", "break end must not be before break start")
	}
	return nil
}

func configError(r WeeklyRule, field, reason string) error {
	return apperr.New(apperr.KindScheduleConfig, "schedule.validate", reason).
		WithField("field", field).
		WithField("day_of_week", fmt.Sprint(int(r.DayOfWeek)))
}

// InBreak reports whether minute falls in [breakStart, breakEnd).
func (r WeeklyRule) InBreak(minute int) bool {
	if !r.HasBreak() {
		return false
	}
	return minute >= r.BreakStart.Minutes() && minute < r.BreakEnd.Minutes()
}

// IsWorkingMinute reports whether minute of day is inside [start, end) and
// outside the break. Inactive rules never work.
func (r WeeklyRule) IsWorkingMinute(minute int) bool {
	if !r.Active {
		return false
	}
	if minute < r.Start.Minutes() || minute >= r.End.Minutes() {
		return false
	}
	return !r.InBreak(minute)
}

// CoversWindow reports whether every minute of [start, start+minutes) is working time.
func (r WeeklyRule) CoversWindow(start Clock, minutes int) bool {
	if minutes <= 0 {
		return false
	}
	end := start.Add(minutes)
	if start < r.Start || end > r.End || !r.Active {
		return false
	}
	if r.HasBreak() && start < *r.BreakEnd && end > *r.BreakStart {
		return false
	}
	return true
}

// SlotStarts walks the working day in SlotMinutes steps. A slot that starts
// inside the break, or would run into it, moves the cursor to the break end.
// A trailing slot that would overrun End is dropped.
func (r WeeklyRule) SlotStarts() []Clock {
	if !r.Active || r.SlotMinutes <= 0 {
		return nil
	}
	var out []Clock
	cursor := r.Start
	for cursor.Add(r.SlotMinutes) <= r.End {
		if r.HasBreak() && cursor < *r.BreakEnd && cursor.Add(r.SlotMinutes) > *r.BreakStart {
			cursor = *r.BreakEnd
			continue
		}
		out = append(out, cursor)
		cursor = cursor.Add(r.SlotMinutes)
	}
	return out
}
