package utils

import (
	"maps"
	"slices"
	"time"
)

// Day truncates t to midnight of its UTC day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SortDates sorts dates in place and returns them.
func SortDates(dates []time.Time, asc bool) []time.Time {
	slices.SortFunc(dates, func(a, b time.Time) int {
		if asc {
			return a.Compare(b)
		}
		return b.Compare(a)
	})
	return dates
}

func GetSortedKeys[T any](m map[time.Time]T, asc bool) []time.Time {
	return SortDates(slices.Collect(maps.Keys(m)), asc)
}

// UniqueDays returns the distinct UTC days of dates in ascending order.
func UniqueDays(dates []time.Time) []time.Time {
	days := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		days[Day(d)] = struct{}{}
	}
	return GetSortedKeys(days, true)
}
