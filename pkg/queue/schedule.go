package queue

import (
	"fmt"
	"strings"
	"time"
)

// Schedule computes the next run strictly after from.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time { return from.Add(s.every) }
func (s intervalSchedule) String() string                { return "every " + s.every.String() }

type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := from.Truncate(time.Hour).Add(time.Duration(s.minute) * time.Minute)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string { return fmt.Sprintf("hourly :%02d", s.minute) }

type dailySchedule struct {
	hour, minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string { return fmt.Sprintf("daily %02d:%02d", s.hour, s.minute) }

// Every runs at a fixed interval.
func Every(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// HourlyAt runs every hour at the given minute.
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: minute}
}

// DailyAt runs once a day at hour:minute in the location of the reference time.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// ParseSchedule reads the textual forms produced by Schedule.String:
// "every 5m", "hourly :15", "daily 03:30".
func ParseSchedule(s string) (Schedule, error) {
	kind, arg, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
	}
	arg = strings.TrimSpace(arg)

	switch kind {
	case "every":
		d, err := time.ParseDuration(arg)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
		}
		return Every(d), nil
	case "hourly":
		var m int
		if _, err := fmt.Sscanf(arg, ":%d", &m); err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
		}
		return HourlyAt(m), nil
	case "daily":
		var h, m int
		if _, err := fmt.Sscanf(arg, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
		}
		return DailyAt(h, m), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
	}
}
