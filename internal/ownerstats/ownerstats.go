// Package ownerstats computes per-owner performance: lead volume, call
// retention, lead-to-deal conversion, and task completion. A configured
// exclusion list removes non-agent accounts from the output entirely.
package ownerstats

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/window"
)

// Row is one owner's performance summary.
type Row struct {
	Owner                       string  `json:"owner"`
	TodaysLeads                 int     `json:"todaysLeads"`
	CalledLeads                 int     `json:"calledLeads"`
	LookbackLeads               int     `json:"leads7d"`
	TodaysDeals                 int     `json:"todaysDeals"`
	ConvertedLeads              int     `json:"convertedLeads"`
	LeadToDealConversionPercent float64 `json:"leadToDealConversionPercent"`
	TotalTasks                  int     `json:"totalTasks"`
	CompletedTasks              int     `json:"completedTasks"`
	TaskCompletionPercent       float64 `json:"taskCompletionPercent"`
	RetentionPercent            float64 `json:"retentionPercent"`
}

type accum struct {
	todaysLeads    int
	calledLeads    int
	lookbackLeads  int
	todaysDeals    int
	converted      int
	totalTasks     int
	completedTasks int
}

// Build computes owner rows. Conversion counts deals whose original
// creation time also falls inside the lookback window, so a deal converted
// from an older lead does not inflate this window's rate. Owners on the
// exclusion list (case-insensitive, trimmed) are dropped from the output.
func Build(leads []crm.Lead, deals []crm.Deal, tasks []crm.Task, clock *window.Clock, lookbackDays int, exclusions []string) []Row {
	excluded := make(map[string]struct{}, len(exclusions))
	for _, name := range exclusions {
		excluded[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	owners := map[string]*accum{}
	get := func(owner string) *accum {
		if owner == "" {
			owner = crm.UnassignedOwner
		}
		a := owners[owner]
		if a == nil {
			a = &accum{}
			owners[owner] = a
		}
		return a
	}

	for _, l := range leads {
		if clock.WithinLastDays(l.CreatedAt, lookbackDays) {
			get(l.Owner).lookbackLeads++
		}
		if clock.IsToday(l.CreatedAt) {
			a := get(l.Owner)
			a.todaysLeads++
			if l.Called {
				a.calledLeads++
			}
		}
	}
	for _, d := range deals {
		if clock.IsToday(d.CreatedAt) {
			get(d.Owner).todaysDeals++
		}
		if clock.WithinLastDays(d.CreatedAt, lookbackDays) &&
			clock.WithinLastDays(d.OriginalCreatedAt, lookbackDays) {
			get(d.Owner).converted++
		}
	}
	for _, t := range tasks {
		if !clock.IsToday(t.CreatedAt) {
			continue
		}
		a := get(t.Owner)
		a.totalTasks++
		if t.Completed() {
			a.completedTasks++
		}
	}

	rows := make([]Row, 0, len(owners))
	for owner, a := range owners {
		if _, skip := excluded[strings.ToLower(strings.TrimSpace(owner))]; skip {
			continue
		}
		rows = append(rows, Row{
			Owner:                       owner,
			TodaysLeads:                 a.todaysLeads,
			CalledLeads:                 a.calledLeads,
			LookbackLeads:               a.lookbackLeads,
			TodaysDeals:                 a.todaysDeals,
			ConvertedLeads:              a.converted,
			LeadToDealConversionPercent: pct(a.converted, a.lookbackLeads),
			TotalTasks:                  a.totalTasks,
			CompletedTasks:              a.completedTasks,
			TaskCompletionPercent:       pct(a.completedTasks, a.totalTasks),
			RetentionPercent:            pct(a.calledLeads, a.todaysLeads),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TodaysLeads != rows[j].TodaysLeads {
			return rows[i].TodaysLeads > rows[j].TodaysLeads
		}
		return rows[i].Owner < rows[j].Owner
	})
	return rows
}

func pct(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 10
}
