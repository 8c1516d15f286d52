// Package dates turns the date representations found in settlement exports
// into calendar dates pinned to a fixed local hour.
package dates

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The spreadsheet serial epoch counts 1900 as a leap year, so serial n is
// 1900-01-01 plus n-2 days.
const (
	serialCorrection = 2
	maxSerial        = 2958465 // 9999-12-31
)

var (
	dayFirst  = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})$`)
	yearFirst = regexp.MustCompile(`^(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})$`)
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Layouts tried after the fixed patterns. Slashed forms are day-first.
var fallbackLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"02/01/2006 - 15:04:05",
	"2/1/2006 - 15:04:05",
	"02/01/2006 - 15:04",
	"20060102",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// Normalizer converts raw values to canonical dates in one location.
type Normalizer struct {
	loc  *time.Location
	hour int
	now  func() time.Time
}

// NewNormalizer returns a Normalizer pinning dates to hour:00 in loc.
func NewNormalizer(loc *time.Location, hour int) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc, hour: hour, now: time.Now}
}

// WithClock replaces the clock used for the today fallback.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	c := *n
	c.now = now
	return &c
}

func (n *Normalizer) Location() *time.Location { return n.loc }

// Pin keeps the calendar date of t as seen in the normalizer's location and
// sets the time of day to the pinned hour.
func (n *Normalizer) Pin(t time.Time) time.Time {
	t = t.In(n.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), n.hour, 0, 0, 0, n.loc)
}

// Today is the current date, pinned.
func (n *Normalizer) Today() time.Time {
	return n.Pin(n.now())
}

// Normalize accepts a time.Time, a numeric serial or a date string. When the
// value cannot be parsed it returns today alongside the parse error so the
// caller can report it and carry on.
func (n *Normalizer) Normalize(v any) (time.Time, error) {
	var (
		t   time.Time
		err error
	)
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			err = fmt.Errorf("zero time")
			break
		}
		t = n.Pin(x)
	case *time.Time:
		if x == nil || x.IsZero() {
			err = fmt.Errorf("zero time")
			break
		}
		t = n.Pin(*x)
	case float64:
		t, err = n.FromSerial(x)
	case float32:
		t, err = n.FromSerial(float64(x))
	case int:
		t, err = n.FromSerial(float64(x))
	case int64:
		t, err = n.FromSerial(float64(x))
	case string:
		t, err = n.ParseString(x)
	case nil:
		err = fmt.Errorf("empty date")
	default:
		t, err = n.ParseString(fmt.Sprint(x))
	}
	if err != nil {
		return n.Today(), fmt.Errorf("normalize date %v: %w", v, err)
	}
	return t, nil
}

// FromSerial converts a spreadsheet serial day number. The fractional time
// part is discarded.
func (n *Normalizer) FromSerial(serial float64) (time.Time, error) {
	if math.IsNaN(serial) || serial < 1 || serial > maxSerial {
		return time.Time{}, fmt.Errorf("serial %v out of range", serial)
	}
	days := int(math.Floor(serial)) - serialCorrection
	t := time.Date(1900, time.January, 1+days, n.hour, 0, 0, 0, n.loc)
	return t, nil
}

// ParseString matches s against ISO 8601 (when it contains T or Z), then
// DD/MM/YYYY and YYYY/MM/DD (either separator), then numeric serials, then
// the fallback layouts. The first match wins.
func (n *Normalizer) ParseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if strings.ContainsAny(s, "TZ") {
		for _, layout := range isoLayouts {
			if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
				return n.Pin(t), nil
			}
		}
	}

	if m := dayFirst.FindStringSubmatch(s); m != nil {
		return n.civil(atoi(m[3]), atoi(m[2]), atoi(m[1]), s)
	}
	if m := yearFirst.FindStringSubmatch(s); m != nil {
		return n.civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), s)
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 && f <= maxSerial {
		return n.FromSerial(f)
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return n.Pin(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func (n *Normalizer) civil(year, month, day int, raw string) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > daysIn(year, time.Month(month)) {
		return time.Time{}, fmt.Errorf("invalid calendar date %q", raw)
	}
	return time.Date(year, time.Month(month), day, n.hour, 0, 0, 0, n.loc), nil
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

// DayRange returns the first and last instant of t's calendar day in t's
// location.
func DayRange(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// Key formats t as YYYY-MM-DD.
func Key(t time.Time) string { return t.Format("2006-01-02") }

// Compact formats t as YYYYMMDD, the legacy ledger date form.
func Compact(t time.Time) string { return t.Format("20060102") }
