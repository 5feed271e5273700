package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Frequency is a fixed scheduling interval for a search.
type Frequency string

const (
	FrequencyEvery30Min  Frequency = "every_30_min"
	FrequencyHourly      Frequency = "hourly"
	FrequencyEvery2Hours Frequency = "every_2_hours"
	FrequencyEvery4Hours Frequency = "every_4_hours"
	FrequencyDaily       Frequency = "daily"
	FrequencyCustom      Frequency = "custom"
)

// DailyRunHour is the wall-clock hour used for daily schedules.
const DailyRunHour = 9

// DateRange is an inclusive calendar window to scan, at day granularity.
type DateRange struct {
	From time.Time `json:"from" db:"from"`
	To   time.Time `json:"to" db:"to"`
}

// Schedule carries the run cadence of a search. LastRun and NextRun are
// written only by the execution engine after each run.
type Schedule struct {
	Frequency  Frequency  `json:"frequency" db:"frequency"`
	CustomCron string     `json:"custom_cron,omitempty" db:"custom_cron"`
	LastRun    *time.Time `json:"last_run" db:"last_run"`
	NextRun    *time.Time `json:"next_run" db:"next_run"`
}

// Notifications holds the delivery preferences of a search.
type Notifications struct {
	Email       string `json:"email" db:"email"`
	OnlyChanges bool   `json:"only_changes" db:"only_changes"`
}

// Search is a named availability monitoring specification.
type Search struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	Name               string        `json:"name" db:"name"`
	Enabled            bool          `json:"enabled" db:"enabled"`
	DateRanges         []DateRange   `json:"date_ranges" db:"date_ranges"`
	StayLengths        []int         `json:"stay_lengths" db:"stay_lengths"`
	Resorts            []int         `json:"resorts" db:"resorts"`
	AccommodationTypes []int         `json:"accommodation_types" db:"accommodation_types"`
	Schedule           Schedule      `json:"schedule" db:"schedule"`
	Notifications      Notifications `json:"notifications" db:"notifications"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// ShouldRun reports whether the search is due: never run, or next run passed.
func (s *Search) ShouldRun(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.Schedule.NextRun == nil {
		return true
	}
	return !now.Before(*s.Schedule.NextRun)
}

// Next computes the next run time after now for the schedule's frequency.
// Daily runs land on the following day at DailyRunHour local time.
func (s Schedule) Next(now time.Time) (time.Time, error) {
	switch s.Frequency {
	case FrequencyEvery30Min:
		return now.Add(30 * time.Minute), nil
	case FrequencyHourly:
		return now.Add(time.Hour), nil
	case FrequencyEvery2Hours:
		return now.Add(2 * time.Hour), nil
	case FrequencyEvery4Hours:
		return now.Add(4 * time.Hour), nil
	case FrequencyDaily:
		next := now.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), DailyRunHour, 0, 0, 0, now.Location()), nil
	case FrequencyCustom:
		sched, err := cron.ParseStandard(s.CustomCron)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", s.CustomCron, err)
		}
		return sched.Next(now), nil
	default:
		return time.Time{}, fmt.Errorf("unknown frequency: %s", s.Frequency)
	}
}

// DateFormat is the wire and key format for calendar dates.
const DateFormat = "2006-01-02"

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateFormat, s)
}
