package money

import "time"

// Civil dates (invoice dates, due dates, reminder dates, lease ends) are carried
// as midnight UTC of their calendar day so comparisons never depend on the zone
// they were read in.

// LongDateLayout is the human format used in reminder texts ("October 15, 2026").
const LongDateLayout = "January 2, 2006"

// MonthLayout names a billing month ("October 2026").
const MonthLayout = "January 2006"

// Clock returns the current instant.
type Clock func() time.Time

// ClockIn returns a clock reporting wall time in loc.
func ClockIn(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

// DateOf strips the time of day from t, keeping t's own calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the calendar day of now().
func Today(now Clock) time.Time {
	return DateOf(now())
}

// AddDays shifts a civil date.
func AddDays(date time.Time, days int) time.Time {
	return DateOf(date).AddDate(0, 0, days)
}

// DaysBetween counts calendar days from -> to; negative when to precedes from.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

// Before reports whether civil date a falls strictly before b.
func Before(a, b time.Time) bool {
	return DateOf(a).Before(DateOf(b))
}

// StartOfMonth returns the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// FormatLong renders a civil date as "October 15, 2026".
func FormatLong(t time.Time) string {
	return DateOf(t).Format(LongDateLayout)
}

// ParseMonth accepts "2006-01"; empty input yields the current month.
func ParseMonth(value string, now Clock) (time.Time, error) {
	if value == "" {
		return StartOfMonth(now()), nil
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfMonth(t), nil
}
