package coverage

import (
	"sort"
	"time"

	"github.com/phonginreallife/oncall-notifier/db"
)

// ActiveResponders returns the technicians whose interval contains at,
// bounds inclusive. Interval bounds are local wall-clock readings in loc.
// Each technician appears once, ordered by the start of their earliest
// matching interval. An empty result means nobody is on call.
func ActiveResponders(at Instant, loc *time.Location, intervals []db.CoverageInterval) []db.Technician {
	if at.IsZero() || len(intervals) == 0 {
		return nil
	}
	now := naive(at.In(loc))

	sorted := make([]db.CoverageInterval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return naive(sorted[i].StartAt).Before(naive(sorted[j].StartAt))
	})

	seen := make(map[string]bool)
	var active []db.Technician
	for _, iv := range sorted {
		start, end := naive(iv.StartAt), naive(iv.EndAt)
		if now.Before(start) || now.After(end) {
			continue
		}

		id := iv.TechnicianID
		if id == "" {
			id = iv.Technician.ID
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		tech := iv.Technician
		if tech.ID == "" {
			tech.ID = id
		}
		active = append(active, tech)
	}
	return active
}
