package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is a three-letter weekday label.
type Weekday string

const (
	Mon Weekday = "Mon"
	Tue Weekday = "Tue"
	Wed Weekday = "Wed"
	Thu Weekday = "Thu"
	Fri Weekday = "Fri"
	Sat Weekday = "Sat"
	Sun Weekday = "Sun"
)

// Week lists weekdays Monday first.
var Week = []Weekday{Mon, Tue, Wed, Thu, Fri, Sat, Sun}

var byStdWeekday = map[time.Weekday]Weekday{
	time.Monday:    Mon,
	time.Tuesday:   Tue,
	time.Wednesday: Wed,
	time.Thursday:  Thu,
	time.Friday:    Fri,
	time.Saturday:  Sat,
	time.Sunday:    Sun,
}

// WeekdayOf computes the weekday from the calendar fields of d.
func WeekdayOf(d DateKey) Weekday {
	return byStdWeekday[d.Time().Weekday()]
}

// ParseWeekday accepts "Mon", "mon", "Monday" and similar spellings.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for _, w := range Week {
			full := strings.ToLower(fullNames[w])
			if s == strings.ToLower(string(w)) || s == full {
				return w, nil
			}
		}
	}
	return "", fmt.Errorf("unknown weekday %q", s)
}

var fullNames = map[Weekday]string{
	Mon: "Monday",
	Tue: "Tuesday",
	Wed: "Wednesday",
	Thu: "Thursday",
	Fri: "Friday",
	Sat: "Saturday",
	Sun: "Sunday",
}

// WeekdaySet is a set of weekdays on which a resource is unavailable.
type WeekdaySet map[Weekday]struct{}

// NewWeekdaySet builds a set from labels.
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	set := make(WeekdaySet, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return set
}

// ParseWeekdaySet parses a list of labels, rejecting unknown ones.
func ParseWeekdaySet(labels []string) (WeekdaySet, error) {
	set := make(WeekdaySet, len(labels))
	for _, l := range labels {
		w, err := ParseWeekday(l)
		if err != nil {
			return nil, err
		}
		set[w] = struct{}{}
	}
	return set, nil
}

// Has reports membership. A nil set is empty.
func (s WeekdaySet) Has(w Weekday) bool {
	_, ok := s[w]
	return ok
}

// Slice returns members Monday first.
func (s WeekdaySet) Slice() []Weekday {
	out := make([]Weekday, 0, len(s))
	for _, w := range Week {
		if s.Has(w) {
			out = append(out, w)
		}
	}
	return out
}

// Strings is Slice as plain strings.
func (s WeekdaySet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, w := range s.Slice() {
		out = append(out, string(w))
	}
	return out
}
