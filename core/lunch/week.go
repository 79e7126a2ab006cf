package lunch

import (
	"fmt"
	"time"
)

// NumDays is the number of serving days per week (Monday through Friday).
const NumDays = 5

// DayLabels are the display labels for the serving days, index 0 = Monday.
var DayLabels = [NumDays]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// WeekKey identifies a single ordering cycle: an ISO-8601 (week, year) pair.
// The year is the ISO week-year (the year containing the week's Thursday),
// not the calendar year of any particular date in it.
type WeekKey struct {
	Week int `json:"week" bson:"week"`
	Year int `json:"year" bson:"year"`
}

func (wk WeekKey) String() string { return fmt.Sprintf("%02d/%d", wk.Week, wk.Year) }

func (wk WeekKey) IsZero() bool { return wk.Week == 0 && wk.Year == 0 }

// WeekOf returns the WeekKey of the ISO week containing t.
// t is normalized to `loc` first; all week math in the app uses the school's
// time zone so that dates near week edges do not shift across a key.
func WeekOf(t time.Time, loc *time.Location) WeekKey {
	year, week := t.In(loc).ISOWeek()
	return WeekKey{Week: week, Year: year}
}

// NextWeekOf returns the WeekKey of the ISO week following the one containing t.
func NextWeekOf(t time.Time, loc *time.Location) WeekKey {
	return WeekOf(t.In(loc).AddDate(0, 0, 7), loc)
}

// DayIndexOf returns the serving-day index (0=Monday .. 4=Friday) of t,
// or ErrOutOfRange when t falls on a weekend.
func DayIndexOf(t time.Time, loc *time.Location) (int, error) {
	switch wd := t.In(loc).Weekday(); wd {
	case time.Saturday, time.Sunday:
		return 0, ErrOutOfRange
	default:
		return int(wd) - 1, nil // time.Monday == 1
	}
}
