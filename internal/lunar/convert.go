// Package lunar converts between solar (Gregorian) dates and the Korean
// lunisolar calendar, and extracts lunar anniversaries from event titles.
package lunar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnsupportedYear is returned when a date falls outside the conversion table.
var ErrUnsupportedYear = errors.New("lunar: date outside supported range")

const day = 24 * time.Hour

// Date is a date in the lunar calendar. Year is zero for an anniversary
// parsed from free text, where only month/day/leap are known.
type Date struct {
	Year  int  `json:"year,omitempty"`
	Month int  `json:"month"`
	Day   int  `json:"day"`
	Leap  bool `json:"leap"`
}

// String renders the date as YYYY-MM-DD, with a "(윤)" suffix for leap months.
func (d Date) String() string {
	s := fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	if d.Year == 0 {
		s = fmt.Sprintf("%02d-%02d", d.Month, d.Day)
	}
	if d.Leap {
		s += "(윤)"
	}
	return s
}

// SupportedRange returns the first and last solar dates FromSolar accepts.
func SupportedRange() (first, last time.Time) {
	return epoch, epoch.AddDate(0, 0, yearStart[len(yearStart)-1]-1)
}

// FromSolar converts the calendar date of t (in t's own location) to its
// lunar equivalent.
func FromSolar(t time.Time) (Date, error) {
	offset := daysSinceEpoch(t)
	if offset < 0 || offset >= yearStart[len(yearStart)-1] {
		return Date{}, fmt.Errorf("%w: %s", ErrUnsupportedYear, t.Format(time.DateOnly))
	}

	// Index of the last lunar year starting on or before offset.
	i := sort.Search(len(yearStart), func(i int) bool { return yearStart[i] > offset }) - 1
	year := minYear + i
	rest := offset - yearStart[i]

	leap := leapMonth(year)
	for m := 1; m <= 12; m++ {
		n := monthDays(year, m)
		if rest < n {
			return Date{Year: year, Month: m, Day: rest + 1}, nil
		}
		rest -= n

		if m == leap {
			n = leapMonthDays(year)
			if rest < n {
				return Date{Year: year, Month: m, Day: rest + 1, Leap: true}, nil
			}
			rest -= n
		}
	}

	// Unreachable when the table is consistent.
	return Date{}, fmt.Errorf("%w: %s", ErrUnsupportedYear, t.Format(time.DateOnly))
}

// ToSolar converts a lunar date to the solar date it falls on, at midnight in
// loc (UTC if nil). year is the lunar year, i.e. the solar year in which that
// lunar year begins.
//
// ok is false when the combination does not exist: a leap month the year
// does not have, a day past the end of the month, or a year outside the table.
func ToSolar(year, month, dayOfMonth int, leap bool, loc *time.Location) (time.Time, bool) {
	if year < minYear || year > maxYear || month < 1 || month > 12 || dayOfMonth < 1 {
		return time.Time{}, false
	}

	lm := leapMonth(year)
	if leap && lm != month {
		return time.Time{}, false
	}

	offset := yearStart[year-minYear]
	for m := 1; m < month; m++ {
		offset += monthDays(year, m)
		if m == lm {
			offset += leapMonthDays(year)
		}
	}

	length := monthDays(year, month)
	if leap {
		offset += length
		length = leapMonthDays(year)
	}
	if dayOfMonth > length {
		return time.Time{}, false
	}

	s := epoch.AddDate(0, 0, offset+dayOfMonth-1)
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc), true
}

// LeapMonth reports the leap month of a lunar year, or 0 when it has none or
// the year is outside the table.
func LeapMonth(year int) int {
	if year < minYear || year > maxYear {
		return 0
	}
	return leapMonth(year)
}

// MonthDays reports the length of a lunar month (29 or 30), or 0 when the
// month does not exist.
func MonthDays(year, month int, leap bool) int {
	if year < minYear || year > maxYear || month < 1 || month > 12 {
		return 0
	}
	if leap {
		if leapMonth(year) != month {
			return 0
		}
		return leapMonthDays(year)
	}
	return monthDays(year, month)
}

func daysSinceEpoch(t time.Time) int {
	civil := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(civil.Sub(epoch) / day)
}
