package seed

import (
	"testing"
	"time"
)

func TestEvalDate(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"datenow()", now},
		{"  datenow()  ", now},
		{"dateadd(30, minutes)", now.Add(30 * time.Minute)},
		{"dateadd(1, minute)", now.Add(time.Minute)},
		{"dateadd(6, hours)", now.Add(6 * time.Hour)},
		{"dateadd(1, days)", time.Date(2025, time.March, 11, 12, 0, 0, 0, time.UTC)},
		{"dateadd(2, weeks)", time.Date(2025, time.March, 24, 12, 0, 0, 0, time.UTC)},
		{"dateadd(3, months)", time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)},
		{"dateadd(1, year)", time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)},
		{"dateadd(-1, days)", time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC)},
		{"DATEADD(1, Week)", time.Date(2025, time.March, 17, 12, 0, 0, 0, time.UTC)},
		{"dateadd( 5 , days )", time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := evalDate(tc.expr, now)
			if err != nil {
				t.Fatalf("evalDate(%q): %v", tc.expr, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("evalDate(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestEvalDateRejectsMalformed(t *testing.T) {
	now := time.Now()
	exprs := []string{
		"",
		"tomorrow",
		"datenow",
		"dateadd(1)",
		"dateadd(one, days)",
		"dateadd(1, fortnights)",
		"dateadd(1.5, hours)",
	}
	for _, expr := range exprs {
		if _, err := evalDate(expr, now); err == nil {
			t.Errorf("evalDate(%q) accepted, want error", expr)
		}
	}
}

// Guards the demo definitions against expression typos.
func TestDemoEventExpressionsParse(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	for _, e := range demoEvents {
		start, err := evalDate(e.start, now)
		if err != nil {
			t.Errorf("event %q start: %v", e.name, err)
			continue
		}
		if !start.After(now) {
			t.Errorf("event %q starts %v, want after seed time", e.name, start)
		}
	}
}
