package condition

import (
	"fmt"
	"strings"
	"time"

	"github.com/justapithecus/leprechaun/types"
)

// dayNames maps config day names to Monday-based indices.
var dayNames = map[string]int{
	"mon": 0, "monday": 0,
	"tue": 1, "tuesday": 1,
	"wed": 2, "wednesday": 2,
	"thu": 3, "thursday": 3,
	"fri": 4, "friday": 4,
	"sat": 5, "saturday": 5,
	"sun": 6, "sunday": 6,
}

var dayLabels = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// Schedule is satisfied on selected weekdays inside a time-of-day window
// [from, until). Equal bounds cover the whole day. When from > until the
// window runs past midnight and the early-morning part belongs to the day
// the window started on.
type Schedule struct {
	days  [7]bool
	from  time.Duration
	until time.Duration
	now   func() time.Time
}

// NewSchedule creates a Schedule from config literals. Empty days means every
// day; empty from/until mean 00:00.
func NewSchedule(days []string, from, until string, now func() time.Time) (*Schedule, error) {
	s := &Schedule{now: now}
	if s.now == nil {
		s.now = time.Now
	}

	if len(days) == 0 {
		for i := range s.days {
			s.days[i] = true
		}
	}
	for _, d := range days {
		idx, ok := dayNames[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, types.NewInvalidConfig("days", "unknown day %q (want one of mon, tue, wed, thu, fri, sat, sun)", d)
		}
		s.days[idx] = true
	}

	var err error
	if s.from, err = parseClock("from-time", from); err != nil {
		return nil, err
	}
	if s.until, err = parseClock("until-time", until); err != nil {
		return nil, err
	}
	return s, nil
}

// parseClock parses HH:MM or HH:MM:SS into an offset from midnight.
func parseClock(field, literal string) (time.Duration, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return 0, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, literal); err == nil {
			return sinceMidnight(t), nil
		}
	}
	return 0, types.NewInvalidConfig(field, "invalid time %q (want HH:MM or HH:MM:SS)", literal)
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// mondayIndex converts a time.Weekday (Sunday = 0) to a Monday-based index.
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// Satisfied evaluates the schedule against the current local time.
func (s *Schedule) Satisfied() bool {
	now := s.now()
	tod := sinceMidnight(now)
	day := mondayIndex(now.Weekday())

	switch {
	case s.from == s.until:
		return s.days[day]
	case s.from < s.until:
		return s.days[day] && tod >= s.from && tod < s.until
	case tod >= s.from:
		return s.days[day]
	case tod < s.until:
		return s.days[(day+6)%7]
	default:
		return false
	}
}

func (s *Schedule) String() string {
	var days []string
	for i, on := range s.days {
		if on {
			days = append(days, dayLabels[i])
		}
	}
	return fmt.Sprintf("on-schedule(%s %s-%s)", strings.Join(days, ","), formatClock(s.from), formatClock(s.until))
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	if sec != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (s *Schedule) sealed() {}
