package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"asbuilt/internal/domain"
)

// Prefixes field crews put in front of measured or approximate values.
var valueMarkers = []string{"approx.", "approx", "no.", "@", "~", "±", "≈", "#", "+"}

// ParseNumber reads the leading number of a field value, tolerating marker prefixes,
// thousands separators and trailing unit text ("@ 4,100 ft" -> 4100).
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(s)
		for _, m := range valueMarkers {
			if strings.HasPrefix(lower, m) {
				s = strings.TrimSpace(s[len(m):])
				changed = true
				break
			}
		}
	}
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == ',' || c == '.' || (end == 0 && c == '-') {
			end++
			continue
		}
		break
	}
	num := strings.TrimRight(strings.ReplaceAll(s[:end], ",", ""), ".")
	if num == "" || num == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ParseClock accepts HH:MM or HH:MM:SS. Anything else yields nil.
func ParseClock(s string) *domain.ClockTime {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	if h > 23 || mi > 59 || sec > 59 {
		return nil
	}
	return &domain.ClockTime{Hour: h, Minute: mi, Second: sec}
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", time.RFC3339}

// ParseDate accepts ISO, US slash and RFC 3339 dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ParseCementClass reduces "Class h cement" style values to the class letter.
func ParseCementClass(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "CLASS")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.IndexAny(s, " ,;/"); i > 0 {
		s = s[:i]
	}
	return s
}
