package schedule

import (
	"testing"
	"time"
)

// 2024-01-07 is a Sunday, 2024-01-10 a Wednesday.
var (
	sunday    = time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)
	wednesday = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Cadence
	}{
		{"daily", Cadence{Type: Daily}},
		{"never", Cadence{Type: Never}},
		{"", Cadence{Type: Never}},
		{"weekly", Cadence{Type: Weekly, DayOfWeek: "sunday"}},
		{"weekly(monday)", Cadence{Type: Weekly, DayOfWeek: "monday"}},
		{"Weekly(Sunday)", Cadence{Type: Weekly, DayOfWeek: "sunday"}},
		{"monthly", Cadence{Type: Monthly, DayOfMonth: 1}},
		{"monthly(15)", Cadence{Type: Monthly, DayOfMonth: 15}},
		{"fortnightly", Cadence{Type: Never}},
	}

	for _, tt := range tests {
		got := Parse(tt.in)
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestIsDue_Daily(t *testing.T) {
	c := Cadence{Type: Daily}
	if !c.IsDue(sunday) || !c.IsDue(wednesday) {
		t.Error("daily cadence should always be due")
	}
}

func TestIsDue_Never(t *testing.T) {
	c := Cadence{Type: Never}
	if c.IsDue(sunday) || c.IsDue(wednesday) {
		t.Error("never cadence should never be due")
	}
}

func TestIsDue_Weekly(t *testing.T) {
	c := Cadence{Type: Weekly, DayOfWeek: "sunday"}
	if !c.IsDue(sunday) {
		t.Error("weekly(sunday) should be due on a Sunday")
	}
	if c.IsDue(wednesday) {
		t.Error("weekly(sunday) should not be due on a Wednesday")
	}
}

func TestIsDue_WeeklyDefaultsToSunday(t *testing.T) {
	c := Cadence{Type: Weekly}
	if !c.IsDue(sunday) {
		t.Error("weekly with no day should default to sunday")
	}
}

func TestIsDue_Monthly(t *testing.T) {
	c := Cadence{Type: Monthly, DayOfMonth: 10}
	if !c.IsDue(wednesday) { // Jan 10
		t.Error("monthly(10) should be due on the 10th")
	}
	if c.IsDue(sunday) { // Jan 7
		t.Error("monthly(10) should not be due on the 7th")
	}
}

func TestIsDue_MonthlyDefaultsToFirst(t *testing.T) {
	c := Cadence{Type: Monthly}
	first := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if !c.IsDue(first) {
		t.Error("monthly with no day should default to the 1st")
	}
}
