package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"

	"github.com/chrissnell/oceandata/internal/types"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-1-2T15:4:5",
	"2006-1-2T15:4",
	"2006-1-2 15:4:5",
	"2006-1-2 15:4",
	"2/1/2006 15:4:5",
	"2/1/2006 15:4",
}

var clockLayouts = []string{"15:4:5", "15:4"}

// dateLayouts returns the layouts tried for a date-only column, chosen by
// the column name where it spells out the order.
func dateLayouts(name string) []string {
	switch key(name) {
	case "dd/mm/yyyy":
		return []string{"2/1/2006"}
	case "mon/day/yr", "mm/dd/yyyy":
		return []string{"1/2/2006"}
	case "yyyy-mm-dd":
		return []string{"2006-1-2"}
	}
	return []string{"2006-1-2", "2/1/2006", "2006/1/2"}
}

// timeParts collects the time-related values of one record
type timeParts struct {
	full     time.Time
	date     time.Time
	clock    time.Duration
	hasClock bool
	timeJ    float64
	timeS    float64
}

func newTimeParts() timeParts {
	return timeParts{timeJ: math.NaN(), timeS: math.NaN()}
}

// set records one value.  It returns an error when the text cannot be read
// as the expected kind of time.
func (tp *timeParts) set(f field, name string, val types.Value) error {
	switch f {
	case fieldTimeJ, fieldTimeS:
		num, ok := val.Float()
		if !ok {
			return fmt.Errorf("non-numeric value %q", val.String())
		}
		if f == fieldTimeJ {
			tp.timeJ = num
		} else {
			tp.timeS = num
		}
		return nil
	}

	text := strings.TrimSpace(val.String())
	switch f {
	case fieldTimestamp:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				if tp.full.IsZero() {
					tp.full = t.UTC()
				}
				return nil
			}
		}
		// a "time" column in a bottle file often holds only the time of day
		if d, ok := parseClock(text); ok {
			if !tp.hasClock {
				tp.clock, tp.hasClock = d, true
			}
			return nil
		}
		for _, layout := range dateLayouts(name) {
			if t, err := time.Parse(layout, text); err == nil {
				if tp.date.IsZero() {
					tp.date = t
				}
				return nil
			}
		}
	case fieldDate:
		for _, layout := range dateLayouts(name) {
			if t, err := time.Parse(layout, text); err == nil {
				if tp.date.IsZero() {
					tp.date = t
				}
				return nil
			}
		}
	case fieldClock:
		if d, ok := parseClock(text); ok {
			if !tp.hasClock {
				tp.clock, tp.hasClock = d, true
			}
			return nil
		}
	}
	return fmt.Errorf("unreadable time %q", text)
}

func parseClock(text string) (time.Duration, bool) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond()), true
		}
	}
	return 0, false
}

// resolve combines the collected parts.  Elapsed-time columns are the most
// precise and win over the header or date columns they are relative to.
func (tp timeParts) resolve() time.Time {
	if !math.IsNaN(tp.timeJ) {
		year := 0
		switch {
		case !tp.full.IsZero():
			year = tp.full.Year()
		case !tp.date.IsZero():
			year = tp.date.Year()
		}
		if year != 0 {
			return DayOfYearTime(year, tp.timeJ)
		}
	}
	if !math.IsNaN(tp.timeS) && !tp.full.IsZero() {
		return tp.full.Add(time.Duration(tp.timeS * float64(time.Second))).Round(time.Millisecond)
	}
	if !tp.full.IsZero() {
		return tp.full
	}
	if !tp.date.IsZero() {
		return tp.date.Add(tp.clock)
	}
	return time.Time{}
}

// DayOfYearTime converts a Sea-Bird julian day (1.0 is midnight on 1
// January) of the given year to a UTC time rounded to the millisecond.
func DayOfYearTime(year int, dayOfYear float64) time.Time {
	jd := julian.CalendarGregorianToJD(year, 1, 1) + dayOfYear - 1
	return julian.JDToTime(jd).UTC().Round(time.Millisecond)
}
