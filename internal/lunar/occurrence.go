package lunar

import "time"

// Resolve returns the solar date on which anniversary a falls in the given
// lunar year, at midnight in loc.
//
// Policy: a leap-month anniversary in a year without that leap month is
// observed on the ordinary month of the same number. A day that does not
// exist in the month (e.g. 30 in a 29-day month) has no occurrence that year.
func Resolve(year int, a Date, loc *time.Location) (time.Time, bool) {
	if a.Leap && LeapMonth(year) != a.Month {
		return ToSolar(year, a.Month, a.Day, false, loc)
	}
	return ToSolar(year, a.Month, a.Day, a.Leap, loc)
}

// OccursOn reports whether anniversary a falls on the calendar date of t.
func OccursOn(t time.Time, a Date) (bool, error) {
	ld, err := FromSolar(t)
	if err != nil {
		return false, err
	}
	s, ok := Resolve(ld.Year, a, t.Location())
	if !ok {
		return false, nil
	}
	return sameDay(s, t), nil
}

// NextOccurrence returns the first occurrence of a on or after the calendar
// date of from. Lunar 11th/12th months of the previous lunar year can land in
// January, so the scan starts one year back.
func NextOccurrence(from time.Time, a Date) (time.Time, bool) {
	loc := from.Location()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	for y := from.Year() - 1; y <= from.Year()+1; y++ {
		s, ok := Resolve(y, a, loc)
		if !ok {
			continue
		}
		if !s.Before(start) {
			return s, true
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
