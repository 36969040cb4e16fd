package domain

import (
	"fmt"
	"strings"
	"time"
)

// Up/Down market windows are aligned to US Eastern time, matching the
// exchange's 15m/5m market schedule.
var etLocation = mustLoadET()

func mustLoadET() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// tzdata missing on the host; UTC alignment is wrong around DST
		// transitions but keeps the process running.
		return time.UTC
	}
	return loc
}

// PeriodStart returns the ET-aligned period start containing ts for the slot.
func PeriodStart(ts time.Time, slot Slot) time.Time {
	et := ts.In(etLocation)
	minutes := slot.Minutes()
	floored := (et.Minute() / minutes) * minutes
	return time.Date(et.Year(), et.Month(), et.Day(), et.Hour(), floored, 0, 0, etLocation)
}

// InOverlap reports whether now falls in the last 5 minutes of the 15m window
// starting at start15. That is the only interval where a 5m window is fully
// nested in the tail of the 15m window and both settle together.
func InOverlap(now, start15 time.Time) bool {
	elapsed := now.Sub(start15)
	return elapsed >= 10*time.Minute && elapsed < 15*time.Minute
}

// WindowSlug builds the exchange market slug for a symbol/slot/period, e.g.
// "btc-updown-15m-1700000000".
func WindowSlug(symbol string, slot Slot, start time.Time) string {
	return fmt.Sprintf("%s-updown-%s-%d", strings.ToLower(symbol), slot, start.Unix())
}
