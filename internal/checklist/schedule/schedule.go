// Package schedule maps category frequencies to the calendar dates a
// generation run materialises, and to the instant a checklist opens for
// submissions.
package schedule

import (
	"fmt"
	"time"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
)

// TargetDates returns the checklist dates a run for day d creates for a
// category of the given frequency. Event frequencies yield nothing; they are
// only instantiated on demand.
func TargetDates(freq domain.Frequency, d domain.Date) []domain.Date {
	switch freq {
	case domain.FrequencyDaily, domain.FrequencyWeekly:
		return []domain.Date{d}
	case domain.FrequencyMonthly:
		return []domain.Date{MonthEnd(d)}
	case domain.FrequencyQuarterly:
		start := QuarterStart(d)
		next := domain.Date{Time: start.AddDate(0, 3, 0)}
		return []domain.Date{start, next}
	}
	return nil
}

// MonthStart is the first day of d's month.
func MonthStart(d domain.Date) domain.Date {
	return domain.NewDate(d.Year(), d.Month(), 1)
}

// MonthEnd is the last day of d's month.
func MonthEnd(d domain.Date) domain.Date {
	return domain.NewDate(d.Year(), d.Month()+1, 0)
}

// QuarterStart is the first day of d's calendar quarter.
func QuarterStart(d domain.Date) domain.Date {
	m := time.Month((int(d.Month())-1)/3*3 + 1)
	return domain.NewDate(d.Year(), m, 1)
}

// OpenInstant is when a checklist dated date starts accepting submissions:
// the opens_at time of day on its date, or on the first of the month for
// monthly checklists (which are dated at month end). Without opens_at the
// checklist opens at midnight.
func OpenInstant(freq domain.Frequency, date domain.Date, opensAt *string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day := date
	if freq == domain.FrequencyMonthly {
		day = MonthStart(date)
	}

	h, m, s := 0, 0, 0
	if opensAt != nil && *opensAt != "" {
		var err error
		if h, m, s, err = ParseTimeOfDay(*opensAt); err != nil {
			return time.Time{}, err
		}
	}
	return day.At(h, m, s, loc), nil
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(v string) (hour, min, sec int, err error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, perr := time.Parse(layout, v); perr == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("invalid time of day %q", v)
}
