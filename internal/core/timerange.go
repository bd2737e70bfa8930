package core

import (
	"fmt"
	"time"
)

// TimeRange selects how far back the dashboard looks.
type TimeRange string

const (
	Range7Days  TimeRange = "7d"
	Range30Days TimeRange = "30d"
	Range90Days TimeRange = "90d"
	RangeYTD    TimeRange = "ytd"
	RangeAll    TimeRange = "all"
)

func ParseTimeRange(s string) (TimeRange, error) {
	switch r := TimeRange(s); r {
	case Range7Days, Range30Days, Range90Days, RangeYTD, RangeAll:
		return r, nil
	default:
		return "", fmt.Errorf("invalid time range %q: must be one of 7d, 30d, 90d, ytd, all", s)
	}
}

// Cutoff returns the inclusive lower bound for the range. The second return
// is false for RangeAll, which has no bound.
func (r TimeRange) Cutoff(now time.Time) (time.Time, bool) {
	switch r {
	case Range7Days:
		return now.AddDate(0, 0, -7), true
	case Range30Days:
		return now.AddDate(0, 0, -30), true
	case Range90Days:
		return now.AddDate(0, 0, -90), true
	case RangeYTD:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}
