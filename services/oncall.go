package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/internal/coverage"
)

// OnCallService answers who is on call and whether now is covered
type OnCallService struct {
	PG       *sql.DB
	Settings *SettingsService
	Calendar *CalendarService
	now      func() time.Time
}

func NewOnCallService(pg *sql.DB, settings *SettingsService, calendar *CalendarService) *OnCallService {
	return &OnCallService{
		PG:       pg,
		Settings: settings,
		Calendar: calendar,
		now:      time.Now,
	}
}

// ListIntervals returns every coverage interval with its technician
func (s *OnCallService) ListIntervals(ctx context.Context, q db.Querier) ([]db.CoverageInterval, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ci.id, ci.technician_id, ci.start_at, ci.end_at,
		       t.name, t.phone, t.email
		FROM coverage_intervals ci
		JOIN technicians t ON t.id = ci.technician_id
		ORDER BY ci.start_at ASC, ci.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load coverage intervals: %w", err)
	}
	defer rows.Close()

	var intervals []db.CoverageInterval
	for rows.Next() {
		var (
			iv         db.CoverageInterval
			start, end db.Timestamp
		)
		if err := rows.Scan(&iv.ID, &iv.TechnicianID, &start, &end,
			&iv.Technician.Name, &iv.Technician.Phone, &iv.Technician.Email); err != nil {
			return nil, fmt.Errorf("failed to scan coverage interval: %w", err)
		}
		iv.StartAt = start.Time
		iv.EndAt = end.Time
		iv.Technician.ID = iv.TechnicianID
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// ActiveResponders returns the technicians on call at `at`
func (s *OnCallService) ActiveResponders(ctx context.Context, q db.Querier, at coverage.Instant, loc *time.Location) ([]db.Technician, error) {
	intervals, err := s.ListIntervals(ctx, q)
	if err != nil {
		return nil, err
	}
	return coverage.ActiveResponders(at, loc, intervals), nil
}

// CoverageStatus is the operator view of the current coverage state
type CoverageStatus struct {
	WithinBusinessHours bool            `json:"within_business_hours"`
	CurrentTime         string          `json:"current_time"`
	Timezone            string          `json:"timezone"`
	Holiday             *db.Holiday     `json:"holiday,omitempty"`
	OnCall              []db.Technician `json:"on_call"`
}

// CoverageStatus evaluates coverage and on-call responders at the current time
func (s *OnCallService) CoverageStatus(ctx context.Context) (*CoverageStatus, error) {
	loc := s.Settings.Location(ctx)
	now := coverage.At(s.now())

	cal, err := s.Calendar.Load(ctx, s.PG, loc)
	if err != nil {
		return nil, err
	}
	onCall, err := s.ActiveResponders(ctx, s.PG, now, loc)
	if err != nil {
		return nil, err
	}
	if onCall == nil {
		onCall = []db.Technician{}
	}

	return &CoverageStatus{
		WithinBusinessHours: cal.IsCovered(now),
		CurrentTime:         now.In(loc).Format(LastCheckLayout),
		Timezone:            loc.String(),
		Holiday:             cal.HolidayOn(now),
		OnCall:              onCall,
	}, nil
}
