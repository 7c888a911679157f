package quartz

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// TimeOfDay is a wall-clock time within a day, to the second.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// NewTimeOfDay returns the given time of day.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute, Second: second}
}

// HourAndMinuteOfDay returns hour:minute:00.
func HourAndMinuteOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute}
}

// TimeOfDayOf returns the wall-clock time of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay{h, m, s}
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, errors.Newf("invalid time of day %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, errors.Wrapf(err, "invalid time of day %q", s)
		}
		v[i] = n
	}
	tod := TimeOfDay{v[0], v[1], v[2]}
	return tod, tod.Validate()
}

// Validate checks the fields are within a day.
func (t TimeOfDay) Validate() error {
	switch {
	case t.Hour < 0 || t.Hour > 23:
		return errors.Newf("hour must be between 0 and 23: %d", t.Hour)
	case t.Minute < 0 || t.Minute > 59:
		return errors.Newf("minute must be between 0 and 59: %d", t.Minute)
	case t.Second < 0 || t.Second > 59:
		return errors.Newf("second must be between 0 and 59: %d", t.Second)
	}
	return nil
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Before reports whether t is earlier in the day than o.
func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.seconds() < o.seconds()
}

// On returns the instant at this time of day on day's date, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, t.Second, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}
