package engagement

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/match"
	"github.com/sells-group/crm-pulse/internal/window"
)

// RepeatSummary splits rejected leads by how often their phone was seen.
type RepeatSummary struct {
	New       int `json:"new"`
	Returning int `json:"returning"`
	Repeat    int `json:"repeat"`
}

// AgentLoss is one agent's repeat-loss row.
type AgentLoss struct {
	Agent             string  `json:"agent"`
	Rejected          int     `json:"rejected"`
	RepeatRejected    int     `json:"repeatRejected"`
	RepeatLossPercent float64 `json:"repeatLossPercent"`
	TopReason         string  `json:"topReason"`
}

// RepeatLoss is the repeat-loss section of the metrics snapshot.
type RepeatLoss struct {
	TotalRejected     int            `json:"totalRejected"`
	Summary           RepeatSummary  `json:"summary"`
	RepeatLossPercent float64        `json:"repeatLossPercent"`
	TopReason         string         `json:"topReason"`
	Agents            []AgentLoss    `json:"agents"`
	ReasonCounts      map[string]int `json:"reasonCounts"`
}

// BuildRepeatLoss classifies rejected leads as new, returning, or repeat
// contacts by phone-group size and ranks agents by repeat-loss share.
func BuildRepeatLoss(leads []crm.Lead, idx *match.Index) RepeatLoss {
	type agentAccum struct {
		total   int
		repeat  int
		reasons map[string]int
	}
	agents := map[string]*agentAccum{}
	reasons := map[string]int{}
	out := RepeatLoss{ReasonCounts: reasons}

	for _, l := range leads {
		if !match.StatusContains(l, "reject") {
			continue
		}
		out.TotalRejected++
		switch idx.Kind(l) {
		case match.ContactNew:
			out.Summary.New++
		case match.ContactReturning:
			out.Summary.Returning++
		default:
			out.Summary.Repeat++
		}

		agent := l.Owner
		acc := agents[agent]
		if acc == nil {
			acc = &agentAccum{reasons: map[string]int{}}
			agents[agent] = acc
		}
		acc.total++
		if idx.Kind(l) == match.ContactRepeat {
			acc.repeat++
		}
		reason := l.LeadSubStatus
		if reason == "" || reason == crm.UnassignedOwner {
			reason = l.LeadStatus
		}
		acc.reasons[reason]++
		reasons[reason]++
	}

	if out.TotalRejected > 0 {
		repeatLosses := out.Summary.Returning + out.Summary.Repeat
		out.RepeatLossPercent = round1(float64(repeatLosses) / float64(out.TotalRejected) * 100)
	}
	out.TopReason = topKey(reasons)

	for agent, acc := range agents {
		out.Agents = append(out.Agents, AgentLoss{
			Agent:             agent,
			Rejected:          acc.total,
			RepeatRejected:    acc.repeat,
			RepeatLossPercent: round1(float64(acc.repeat) / float64(max(acc.total, 1)) * 100),
			TopReason:         topKey(acc.reasons),
		})
	}
	sort.Slice(out.Agents, func(i, j int) bool {
		if out.Agents[i].RepeatLossPercent != out.Agents[j].RepeatLossPercent {
			return out.Agents[i].RepeatLossPercent > out.Agents[j].RepeatLossPercent
		}
		return out.Agents[i].Agent < out.Agents[j].Agent
	})
	return out
}

// WinBackTarget is one rejected repeat contact worth another attempt.
type WinBackTarget struct {
	Phone       string `json:"phone"`
	Score       int    `json:"score"`
	Agent       string `json:"agent"`
	Service     string `json:"service"`
	RecencyDays int    `json:"recencyDays"`
}

// WinBack is the win-back section of the metrics snapshot.
type WinBack struct {
	RepeatCandidates int             `json:"repeatCandidates"`
	ImmediateTargets int             `json:"immediateTargets"` // score >= 80
	RecoverablePct   int             `json:"recoverablePercent"`
	Targets          []WinBackTarget `json:"targets"`
}

// BuildWinBack scores rejected leads whose phone was seen at least twice.
// The score rewards engaged and recent groups and penalizes stale or
// price-objection leads; results are clamped to [0,100], top 10 kept.
func BuildWinBack(leads []crm.Lead, idx *match.Index, clock *window.Clock) WinBack {
	var wb WinBack
	for _, l := range leads {
		if !match.StatusContains(l, "reject") {
			continue
		}
		group := idx.PhoneToLeads[l.NormalizedPhone]
		if len(group) < 2 {
			continue
		}
		wb.RepeatCandidates++

		recency := 0.0
		if !l.CreatedAt.IsZero() {
			recency = math.Max(0, clock.Now().Sub(l.CreatedAt).Hours()/24)
		}
		engaged := 0
		for _, g := range group {
			if g.Called {
				engaged++
			}
		}
		base := 40 + float64(engaged)*10 + math.Max(0, 30-recency)*0.5
		if len(group) > 2 {
			base += 10
		}
		penalty := 0.0
		if recency > 90 {
			penalty += 10
		}
		if strings.Contains(strings.ToLower(l.LeadSubStatus), "price") {
			penalty += 10
		}
		score := int(math.Round(math.Max(0, math.Min(100, base-penalty))))

		service := l.LeadSubStatus
		if service == "" || service == crm.UnassignedOwner {
			service = "Service TBD"
		}
		wb.Targets = append(wb.Targets, WinBackTarget{
			Phone:       l.NormalizedPhone,
			Score:       score,
			Agent:       l.Owner,
			Service:     service,
			RecencyDays: int(math.Round(recency)),
		})
	}

	sort.Slice(wb.Targets, func(i, j int) bool {
		if wb.Targets[i].Score != wb.Targets[j].Score {
			return wb.Targets[i].Score > wb.Targets[j].Score
		}
		return wb.Targets[i].Phone < wb.Targets[j].Phone
	})
	if len(wb.Targets) > 10 {
		wb.Targets = wb.Targets[:10]
	}
	for _, t := range wb.Targets {
		if t.Score >= 80 {
			wb.ImmediateTargets++
		}
	}
	if wb.RepeatCandidates > 0 {
		wb.RecoverablePct = int(math.Round(float64(wb.ImmediateTargets) / float64(wb.RepeatCandidates) * 100))
	}
	return wb
}

func topKey(counts map[string]int) string {
	best, bestCount := "", 0
	for k, v := range counts {
		if v > bestCount || (v == bestCount && best != "" && k < best) {
			best, bestCount = k, v
		}
	}
	return best
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
