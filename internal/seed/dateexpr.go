package seed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Seed definitions state dates relative to the run ("two weeks from now"),
// so reseeding always yields upcoming events. The expression language has
// two forms: datenow() is the clock's current instant, and dateadd(N, unit)
// offsets it by N units. Units are minutes, hours, days, weeks, months, and
// years; singular forms are accepted.

var dateAddRe = regexp.MustCompile(`(?i)^dateadd\(\s*(-?\d+)\s*,\s*([a-z]+)\s*\)$`)

// evalDate evaluates a date expression against now.
func evalDate(expr string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(expr)
	if strings.EqualFold(trimmed, "datenow()") {
		return now, nil
	}
	m := dateAddRe.FindStringSubmatch(trimmed)
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized date expression %q", expr)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("date offset in %q: %w", expr, err)
	}
	return addUnits(now, n, m[2])
}

func addUnits(t time.Time, n int, unit string) (time.Time, error) {
	u := strings.ToLower(unit)
	if !strings.HasSuffix(u, "s") {
		u += "s"
	}
	switch u {
	case "minutes":
		return t.Add(time.Duration(n) * time.Minute), nil
	case "hours":
		return t.Add(time.Duration(n) * time.Hour), nil
	case "days":
		return t.AddDate(0, 0, n), nil
	case "weeks":
		return t.AddDate(0, 0, 7*n), nil
	case "months":
		return t.AddDate(0, n, 0), nil
	case "years":
		return t.AddDate(n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown date unit %q", unit)
	}
}
