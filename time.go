package auth

import (
	"strconv"
	"strings"
	"time"
)

// IsWithinThresholdPeriod checks if t happened less than period before now
func IsWithinThresholdPeriod(t time.Time, period time.Duration, now time.Time) bool {
	return t.After(now.Add(-period))
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(t time.Time, period time.Duration, now time.Time) bool {
	return !IsWithinThresholdPeriod(t, period, now)
}

// ParseDuration accepts time.ParseDuration syntax plus a "d" suffix for
// whole days, e.g. "7d" or "30d".
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(value)
}
