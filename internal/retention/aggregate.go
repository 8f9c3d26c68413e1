package retention

import (
	"sort"
	"time"
)

// Session is one user session row from the warehouse sessions table.
type Session struct {
	UserID      string
	SessionDate time.Time
	CohortDate  time.Time
}

// AggregateRow is one row of the retention aggregate: a cohort date, the
// number of distinct users who started on that date, and one retained
// count per configured offset (same order as the offset list).
type AggregateRow struct {
	CohortDate time.Time
	NewPlayers int64
	Retained   []int64
}

// Aggregate computes the retention aggregate from raw sessions. This is
// the reference implementation of the semantics the warehouse query
// materializes: one row per distinct cohort date, distinct-user counts,
// and exact-day offset matches (a user active on day 8 but not day 7
// does not count toward the day-7 offset).
func Aggregate(sessions []Session, offsets []int) []AggregateRow {
	// cohort date -> distinct users in that cohort
	cohorts := make(map[string]map[string]bool)
	// user -> set of dates the user had a session on
	activity := make(map[string]map[string]bool)
	// user -> cohort date (all rows for a user carry the same one)
	userCohort := make(map[string]time.Time)

	for _, s := range sessions {
		cohort := dateKey(s.CohortDate)
		if cohorts[cohort] == nil {
			cohorts[cohort] = make(map[string]bool)
		}
		cohorts[cohort][s.UserID] = true
		userCohort[s.UserID] = truncateDate(s.CohortDate)

		if activity[s.UserID] == nil {
			activity[s.UserID] = make(map[string]bool)
		}
		activity[s.UserID][dateKey(s.SessionDate)] = true
	}

	keys := make([]string, 0, len(cohorts))
	for k := range cohorts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]AggregateRow, 0, len(keys))
	for _, key := range keys {
		users := cohorts[key]
		row := AggregateRow{
			NewPlayers: int64(len(users)),
			Retained:   make([]int64, len(offsets)),
		}

		for user := range users {
			cohort := userCohort[user]
			row.CohortDate = cohort
			for i, offset := range offsets {
				target := dateKey(cohort.AddDate(0, 0, offset))
				if activity[user][target] {
					row.Retained[i]++
				}
			}
		}

		rows = append(rows, row)
	}

	return rows
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
