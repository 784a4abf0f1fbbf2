package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Clock is a civil time of day in minutes after midnight (0..1440).
type Clock int

// MinutesPerDay bounds a Clock; 24:00 is accepted as an end of day.
const MinutesPerDay = 24 * 60

// ParseClock parses "HH:MM" or Postgres-style "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("schedule: invalid time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("schedule: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("schedule: invalid minute in %q", s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec != 0 {
			return 0, fmt.Errorf("schedule: seconds not supported in %q", s)
		}
	}
	c := Clock(hour*60 + minute)
	if hour < 0 || c > MinutesPerDay {
		return 0, fmt.Errorf("schedule: time out of range %q", s)
	}
	return c, nil
}

// MustClock is ParseClock for literals; it panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Minutes returns the minute of day.
func (c Clock) Minutes() int { return int(c) }

// Add returns c shifted by minutes.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("schedule: time must be a string: %w", err)
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
