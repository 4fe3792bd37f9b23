package stream

import "time"

// FormatMessageDate renders a day bucket label: Today, Yesterday, the
// weekday name within the last week, otherwise the long date.
func FormatMessageDate(day, now time.Time) string {
	today := dateOnly(now)
	yesterday := today.AddDate(0, 0, -1)

	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(yesterday):
		return "Yesterday"
	case today.Sub(day) < 7*24*time.Hour && day.Before(today):
		return day.Weekday().String()
	default:
		return day.Format("January 2, 2006")
	}
}

// FormatMessageTime renders the in-bubble timestamp.
func FormatMessageTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("3:04 PM")
}
