package lunar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// markerPattern matches "(음력 4월 8일)", "(음력 윤4월 8일)", "(음 4/8)", "(음 윤4.8)".
var markerPattern = regexp.MustCompile(`\(음력?\s*(윤)?\s?(\d{1,2})[월/.]\s?(\d{1,2})일?\)`)

// propertyPattern matches the structured X-LUNAR-DATE value: "04-08" or "L04-08".
var propertyPattern = regexp.MustCompile(`^\s*([Ll])?(\d{1,2})-(\d{1,2})\s*$`)

// Normalize returns s in Unicode NFC. Some CalDAV clients store Hangul
// decomposed (NFD), which would otherwise defeat substring and regex matching.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// ParseMarker extracts a lunar month/day from an event title. Only syntax is
// validated (month 1-12, day 1-31); whether the day exists in a given lunar
// year is decided by ToSolar/Resolve.
func ParseMarker(title string) (Date, bool) {
	m := markerPattern.FindStringSubmatch(Normalize(title))
	if m == nil {
		return Date{}, false
	}
	return build(m[1] != "", m[2], m[3])
}

// ParseProperty parses the X-LUNAR-DATE property value.
func ParseProperty(value string) (Date, bool) {
	m := propertyPattern.FindStringSubmatch(value)
	if m == nil {
		return Date{}, false
	}
	return build(m[1] != "", m[2], m[3])
}

// FormatProperty is the inverse of ParseProperty.
func FormatProperty(d Date) string {
	s := fmt.Sprintf("%02d-%02d", d.Month, d.Day)
	if d.Leap {
		return "L" + s
	}
	return s
}

// FormatKorean renders month/day as "1월 15일" or "윤4월 8일".
func FormatKorean(d Date) string {
	var b strings.Builder
	if d.Leap {
		b.WriteString("윤")
	}
	fmt.Fprintf(&b, "%d월 %d일", d.Month, d.Day)
	return b.String()
}

func build(leap bool, month, dayOfMonth string) (Date, bool) {
	mo, err := strconv.Atoi(month)
	if err != nil {
		return Date{}, false
	}
	d, err := strconv.Atoi(dayOfMonth)
	if err != nil {
		return Date{}, false
	}
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return Date{}, false
	}
	return Date{Month: mo, Day: d, Leap: leap}, true
}
