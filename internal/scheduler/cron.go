package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronMatches reports whether t satisfies a standard 5-field cron
// expression (minute hour day-of-month month day-of-week), evaluated at
// minute granularity in t's own location. Grounded on the reference
// cron_matches implementation; unlike it, the day-of-week field is
// compared against Go's time.Weekday (already 0=Sunday..6=Saturday), so
// there's no isoweekday()%7 conversion to get wrong.
func cronMatches(expression string, t time.Time) (bool, error) {
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return false, fmt.Errorf("invalid cron expression (need 5 fields): %q", expression)
	}

	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	checks := []struct {
		field string
		value int
	}{
		{minute, t.Minute()},
		{hour, t.Hour()},
		{dom, t.Day()},
		{month, int(t.Month())},
		{dow, int(t.Weekday())},
	}

	for _, c := range checks {
		ok, err := fieldMatches(c.field, c.value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// fieldMatches supports *, */N, N, N-M, and comma-separated lists of any
// of the above.
func fieldMatches(field string, value int) (bool, error) {
	if field == "*" {
		return true, nil
	}

	if strings.Contains(field, ",") {
		for _, part := range strings.Split(field, ",") {
			ok, err := fieldMatches(strings.TrimSpace(part), value)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	if strings.HasPrefix(field, "*/") {
		step, err := strconv.Atoi(field[2:])
		if err != nil || step <= 0 {
			return false, fmt.Errorf("invalid cron step: %q", field)
		}
		return value%step == 0, nil
	}

	if strings.Contains(field, "-") {
		parts := strings.SplitN(field, "-", 2)
		start, err1 := strconv.Atoi(parts[0])
		end, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return false, fmt.Errorf("invalid cron range: %q", field)
		}
		return value >= start && value <= end, nil
	}

	n, err := strconv.Atoi(field)
	if err != nil {
		return false, fmt.Errorf("invalid cron field: %q", field)
	}
	return value == n, nil
}

// ValidateCronExpression checks that expression is a well-formed 5-field
// cron string, using robfig/cron's standard parser purely as a syntax
// check at task-creation time. It is never consulted to decide whether a
// task is due -- that's cronMatches's whole-minute, configured-timezone
// predicate, evaluated fresh on every tick.
func ValidateCronExpression(expression string) error {
	if _, err := cron.ParseStandard(expression); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	return nil
}
