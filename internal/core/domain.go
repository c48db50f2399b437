package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used by the server and by cache keys.
const DateLayout = "2006-01-02"

type (
	Money struct {
		Cents int64
	}

	// DateRange is an inclusive range of calendar days.
	DateRange struct {
		Start time.Time
		End   time.Time
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidRange  = errors.New("end date must not be before start date")
)

// MonthRange returns the calendar month containing t.
func MonthRange(t time.Time) DateRange {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return DateRange{
		Start: start,
		End:   start.AddDate(0, 1, -1),
	}
}

// ParseDateRange parses YYYY-MM-DD bounds. An empty bound defaults to the
// corresponding bound of the month containing now.
func ParseDateRange(start, end string, now time.Time) (DateRange, error) {
	r := MonthRange(now)

	if s := strings.TrimSpace(start); s != "" {
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			return DateRange{}, ErrInvalidDate
		}
		r.Start = t
	}
	if s := strings.TrimSpace(end); s != "" {
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			return DateRange{}, ErrInvalidDate
		}
		r.End = t
	}

	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidDate
	}
	if r.End.Before(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// StartDate formats the lower bound as YYYY-MM-DD.
func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }

// EndDate formats the upper bound as YYYY-MM-DD.
func (r DateRange) EndDate() string { return r.End.Format(DateLayout) }

func (r DateRange) String() string {
	return r.StartDate() + ".." + r.EndDate()
}
