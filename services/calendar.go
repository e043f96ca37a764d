package services

import (
	"context"
	"fmt"
	"time"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/internal/coverage"
)

// CalendarService loads business hours and holidays into a coverage snapshot
type CalendarService struct{}

func NewCalendarService() *CalendarService {
	return &CalendarService{}
}

// Load reads the current windows and holidays through q
func (s *CalendarService) Load(ctx context.Context, q db.Querier, loc *time.Location) (*coverage.Calendar, error) {
	windows, err := s.listWindows(ctx, q)
	if err != nil {
		return nil, err
	}
	holidays, err := s.listHolidays(ctx, q)
	if err != nil {
		return nil, err
	}
	return coverage.NewCalendar(loc, windows, holidays), nil
}

func (s *CalendarService) listWindows(ctx context.Context, q db.Querier) ([]db.BusinessHourWindow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT day_of_week, CAST(start_time AS TEXT), CAST(end_time AS TEXT)
		FROM business_hours
		ORDER BY day_of_week
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load business hours: %w", err)
	}
	defer rows.Close()

	var windows []db.BusinessHourWindow
	for rows.Next() {
		var w db.BusinessHourWindow
		if err := rows.Scan(&w.DayOfWeek, &w.StartTime, &w.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan business hours: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (s *CalendarService) listHolidays(ctx context.Context, q db.Querier) ([]db.Holiday, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, CAST(date AS TEXT), name, description, notified
		FROM holidays
		ORDER BY date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}
	defer rows.Close()

	var holidays []db.Holiday
	for rows.Next() {
		var h db.Holiday
		if err := rows.Scan(&h.ID, &h.Date, &h.Name, &h.Description, &h.Notified); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// MarkHolidayNotified flips the holiday flag once. It reports whether this
// call changed it.
func (s *CalendarService) MarkHolidayNotified(ctx context.Context, q db.Querier, holidayID string) (bool, error) {
	res, err := q.ExecContext(ctx, `UPDATE holidays SET notified = $1 WHERE id = $2 AND notified = $3`, true, holidayID, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark holiday notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}
