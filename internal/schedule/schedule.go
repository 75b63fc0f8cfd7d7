// Package schedule evaluates collection run cadences.
package schedule

import (
	"strconv"
	"strings"
	"time"
)

// CadenceType is the schedule rule kind.
type CadenceType string

const (
	Daily   CadenceType = "daily"
	Weekly  CadenceType = "weekly"
	Monthly CadenceType = "monthly"
	Never   CadenceType = "never"
)

// Cadence controls whether a collection is processed on a scheduled run.
type Cadence struct {
	Type       CadenceType
	DayOfWeek  string // weekly: lower-cased English day name, default "sunday"
	DayOfMonth int    // monthly: default 1
}

// Parse parses a Kometa-style schedule string: "daily", "never",
// "weekly(sunday)", "monthly(15)". An empty or unrecognized value parses
// as never.
func Parse(value string) Cadence {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Cadence{Type: Never}
	}

	switch {
	case v == "daily":
		return Cadence{Type: Daily}

	case strings.HasPrefix(v, "weekly"):
		day := "sunday"
		if arg := parseArg(v); arg != "" {
			day = arg
		}
		return Cadence{Type: Weekly, DayOfWeek: day}

	case strings.HasPrefix(v, "monthly"):
		dom := 1
		if arg := parseArg(v); arg != "" {
			if n, err := strconv.Atoi(arg); err == nil {
				dom = n
			}
		}
		return Cadence{Type: Monthly, DayOfMonth: dom}
	}

	return Cadence{Type: Never}
}

// parseArg extracts the parenthesized argument from "weekly(sunday)".
func parseArg(v string) string {
	open := strings.IndexByte(v, '(')
	if open < 0 {
		return ""
	}
	return strings.TrimSuffix(v[open+1:], ")")
}

// IsDue reports whether a collection with this cadence should run today.
// Manual (unscheduled) invocations bypass this check entirely.
func (c Cadence) IsDue(today time.Time) bool {
	switch c.Type {
	case Daily:
		return true
	case Never:
		return false
	case Weekly:
		day := c.DayOfWeek
		if day == "" {
			day = "sunday"
		}
		return strings.ToLower(today.Weekday().String()) == day
	case Monthly:
		dom := c.DayOfMonth
		if dom == 0 {
			dom = 1
		}
		return today.Day() == dom
	}
	return false
}

// String renders the cadence back to its config form.
func (c Cadence) String() string {
	switch c.Type {
	case Weekly:
		return "weekly(" + c.DayOfWeek + ")"
	case Monthly:
		return "monthly(" + strconv.Itoa(c.DayOfMonth) + ")"
	default:
		return string(c.Type)
	}
}
