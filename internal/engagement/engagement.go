// Package engagement derives per-customer scores from repeated lead
// activity: an engagement composite per unique phone, a repeat-loss split
// of rejected leads, and ranked win-back targets. All numeric derivation
// lives here so the presentation layer only formats.
package engagement

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/match"
	"github.com/sells-group/crm-pulse/internal/window"
)

// Customer is one unique phone scored across its lead records.
type Customer struct {
	Phone       string `json:"phone"`
	Records     int    `json:"records"`
	Score       int    `json:"score"`
	RecencyDays int    `json:"recencyDays"`
	Status      string `json:"status"`
}

// Distribution buckets customers by score band.
type Distribution struct {
	Total  int `json:"total"`
	High   int `json:"high"`   // 80-100
	Stable int `json:"stable"` // 60-79
	AtRisk int `json:"atRisk"` // 40-59
	Weak   int `json:"weak"`   // <40
}

// Report is the engagement section of the metrics snapshot.
type Report struct {
	Distribution Distribution `json:"distribution"`
	TopActive    []Customer   `json:"topActive"`
	TopRejected  []Customer   `json:"topRejected"`
}

// Score computes the engagement composite for one phone group: base 40,
// +15 per connected call, +15 when seen more than once, +15 when contacted
// in the last 7 days, +10 with multiple lead stages; capped at 100.
func Score(group []crm.Lead, clock *window.Clock) (score, recencyDays int) {
	if len(group) == 0 {
		return 0, 0
	}
	recency := 0.0
	if !group[0].CreatedAt.IsZero() {
		recency = math.Max(0, clock.Now().Sub(group[0].CreatedAt).Hours()/24)
	}
	connected := 0
	statuses := map[string]struct{}{}
	for _, l := range group {
		if l.Called {
			connected++
		}
		statuses[l.LeadStatus] = struct{}{}
	}
	s := 40 + connected*15
	if len(group) > 1 {
		s += 15
	}
	if recency <= 7 {
		s += 15
	}
	if len(statuses) > 1 {
		s += 10
	}
	if s > 100 {
		s = 100
	}
	return s, int(math.Round(recency))
}

// Build scores every phone group in the index and splits the top customers
// into active and rejected lists (20 each, highest score first).
func Build(idx *match.Index, clock *window.Clock) Report {
	customers := make([]Customer, 0, len(idx.PhoneToLeads))
	for phone, group := range idx.PhoneToLeads {
		score, recency := Score(group, clock)
		status := group[0].LeadStatus
		customers = append(customers, Customer{
			Phone:       phone,
			Records:     len(group),
			Score:       score,
			RecencyDays: recency,
			Status:      status,
		})
	}
	sort.Slice(customers, func(i, j int) bool {
		if customers[i].Score != customers[j].Score {
			return customers[i].Score > customers[j].Score
		}
		return customers[i].Phone < customers[j].Phone
	})

	rep := Report{}
	rep.Distribution.Total = len(customers)
	for _, c := range customers {
		switch {
		case c.Score >= 80:
			rep.Distribution.High++
		case c.Score >= 60:
			rep.Distribution.Stable++
		case c.Score >= 40:
			rep.Distribution.AtRisk++
		default:
			rep.Distribution.Weak++
		}
		rejected := strings.Contains(strings.ToLower(c.Status), "reject")
		if rejected && len(rep.TopRejected) < 20 {
			rep.TopRejected = append(rep.TopRejected, c)
		}
		if !rejected && len(rep.TopActive) < 20 {
			rep.TopActive = append(rep.TopActive, c)
		}
	}
	return rep
}
