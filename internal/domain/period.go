package domain

import "time"

const day = 24 * time.Hour

// WholeDays returns floor((to - from) / 24h), clamped to zero.
func WholeDays(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / day)
}

// DayStart returns midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DayKey formats t's calendar day in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return DayStart(t, loc).Format("2006-01-02")
}

// CalendarDays returns the number of calendar-day boundaries in loc between
// from and to. DST transitions do not affect the count.
func CalendarDays(from, to time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	f := from.In(loc)
	t := to.In(loc)
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int64(td.Sub(fd) / day)
}
