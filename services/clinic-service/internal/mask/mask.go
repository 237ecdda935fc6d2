// Package mask formats raw keystrokes into the display shapes used by the
// clinic front desk (DD/MM/YYYY, HH:MM, CPF, phone) and converts display
// dates to ISO calendar dates.
//
// Every mask is progressive: it accepts whatever digits have been typed so
// far, ignores non-digits and truncates at the field's digit count.
package mask

import (
	"strconv"
	"strings"
	"time"
)

const (
	DateDigits  = 8
	TimeDigits  = 4
	CPFDigits   = 11
	PhoneDigits = 11
)

// Digits keeps the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func truncated(raw string, max int) string {
	d := Digits(raw)
	if len(d) > max {
		d = d[:max]
	}
	return d
}

// Date masks to DD/MM/YYYY: "25122024" -> "25/12/2024", "251" -> "25/1".
func Date(raw string) string {
	d := truncated(raw, DateDigits)
	switch {
	case len(d) <= 2:
		return d
	case len(d) <= 4:
		return d[:2] + "/" + d[2:]
	default:
		return d[:2] + "/" + d[2:4] + "/" + d[4:]
	}
}

// Time masks to HH:MM: "0930" -> "09:30".
func Time(raw string) string {
	d := truncated(raw, TimeDigits)
	if len(d) <= 2 {
		return d
	}
	return d[:2] + ":" + d[2:]
}

// CPF masks to 000.000.000-00.
func CPF(raw string) string {
	d := truncated(raw, CPFDigits)
	switch {
	case len(d) <= 3:
		return d
	case len(d) <= 6:
		return d[:3] + "." + d[3:]
	case len(d) <= 9:
		return d[:3] + "." + d[3:6] + "." + d[6:]
	default:
		return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:]
	}
}

// Phone masks to (00) 00000-0000. The hyphen lands after the fifth local
// digit, so ten digit landlines render as (11) 87654-321.
func Phone(raw string) string {
	d := truncated(raw, PhoneDigits)
	if len(d) <= 2 {
		return d
	}
	local := d[2:]
	if len(local) > 5 {
		local = local[:5] + "-" + local[5:]
	}
	return "(" + d[:2] + ") " + local
}

// DateToISO rearranges DD/MM/YYYY into YYYY-MM-DD. Anything that does not
// split into exactly three parts is returned unchanged; no calendar check
// is made.
func DateToISO(s string) string {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return s
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0]
}

// ISOToDate is the display inverse of DateToISO.
func ISOToDate(s string) string {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return s
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}

// ParseDisplayDate parses DD/MM/YY or DD/MM/YYYY. Two digit years are
// taken as 20YY.
func ParseDisplayDate(s string, loc *time.Location) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return time.Time{}, false
	}
	if l := len(parts[2]); l != 2 && l != 4 {
		return time.Time{}, false
	}
	for _, p := range parts {
		if Digits(p) != p {
			return time.Time{}, false
		}
	}
	day, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	year, _ := strconv.Atoi(parts[2])
	if len(parts[2]) == 2 {
		year += 2000
	}
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeDate accepts YYYY-MM-DD, DD/MM/YYYY, DD/MM/YY or eight raw
// digits (DDMMYYYY) and returns the ISO form. Input that is not a real
// date is rearranged but left for the caller to reject.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "-") {
		return s
	}
	if !strings.Contains(s, "/") && len(Digits(s)) == DateDigits && Digits(s) == s {
		s = Date(s)
	}
	if t, ok := ParseDisplayDate(s, time.UTC); ok {
		return t.Format("2006-01-02")
	}
	return DateToISO(s)
}

// NormalizeTime accepts HH:MM or four raw digits (HHMM) and returns HH:MM.
func NormalizeTime(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") && len(s) == TimeDigits && Digits(s) == s {
		return Time(s)
	}
	return s
}

// ValidISODate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidISODate(s string) bool {
	if len(s) != len("2006-01-02") {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// ValidClock reports whether s is a zero padded HH:MM between 00:00 and 23:59.
func ValidClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	if Digits(s[:2]) != s[:2] || Digits(s[3:]) != s[3:] {
		return false
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return h < 24 && m < 60
}
