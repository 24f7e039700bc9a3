package numbering

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFiscalYearStart indicates a start month outside 1..12.
var ErrInvalidFiscalYearStart = errors.New("numbering: fiscal year start must be a month between 1 and 12")

// FiscalYear is identified by the calendar year it starts in.
type FiscalYear struct {
	StartYear  int
	StartMonth time.Month
}

// FiscalYearFor returns the fiscal year containing t for an organization
// whose year starts in startMonth.
func FiscalYearFor(startMonth int, t time.Time) (FiscalYear, error) {
	if startMonth < 1 || startMonth > 12 {
		return FiscalYear{}, ErrInvalidFiscalYearStart
	}
	year := t.Year()
	if int(t.Month()) < startMonth {
		year--
	}
	return FiscalYear{StartYear: year, StartMonth: time.Month(startMonth)}, nil
}

// String renders the short label used in document numbers, e.g. "24-25".
func (fy FiscalYear) String() string {
	return fmt.Sprintf("%02d-%02d", fy.StartYear%100, (fy.StartYear+1)%100)
}

// Bounds returns the half-open interval [start, end) of the fiscal year.
func (fy FiscalYear) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(fy.StartYear, fy.StartMonth, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(1, 0, 0)
}
