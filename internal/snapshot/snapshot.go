// Package snapshot composes the aggregators into the dashboard metrics
// snapshot. Each Build produces a complete fresh tree; nothing here merges
// with previous snapshots.
package snapshot

import (
	"math"
	"time"

	"github.com/sells-group/crm-pulse/internal/category"
	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/engagement"
	"github.com/sells-group/crm-pulse/internal/funnel"
	"github.com/sells-group/crm-pulse/internal/match"
	"github.com/sells-group/crm-pulse/internal/ownerstats"
	"github.com/sells-group/crm-pulse/internal/window"
)

const (
	maxLatestLeads     = 200
	maxOverdueRows     = 25
	DefaultOverdueMins = 30
)

// Config carries the tunables the assembler needs. Zero values fall back
// to the dashboard defaults.
type Config struct {
	LookbackDays    int
	NCLookbackDays  int
	OverdueMinutes  int
	MinHourVolume   int
	SLA             funnel.SLAConfig
	CategoryFields  []string
	OwnerExclusions []string
	TopAreas        int
	Gazetteer       *category.Gazetteer
}

func (c Config) withDefaults() Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = 7
	}
	if c.NCLookbackDays <= 0 {
		c.NCLookbackDays = 30
	}
	if c.OverdueMinutes <= 0 {
		c.OverdueMinutes = DefaultOverdueMins
	}
	if c.MinHourVolume <= 0 {
		c.MinHourVolume = funnel.DefaultMinHourVolume
	}
	if c.SLA.NC1ToNC2Hours <= 0 || c.SLA.NC2ToNC3Hours <= 0 {
		c.SLA = funnel.DefaultSLA()
	}
	if len(c.CategoryFields) == 0 {
		c.CategoryFields = category.DefaultFields
	}
	if c.TopAreas <= 0 {
		c.TopAreas = 5
	}
	if c.Gazetteer == nil {
		c.Gazetteer = category.DefaultGazetteer()
	}
	return c
}

// KPIs are the scalar summary numbers at the top of the dashboard.
type KPIs struct {
	TodaysLeadsCount            int     `json:"todaysLeadsCount"`
	NC1Count                    int     `json:"nc1Count"`
	NC2Count                    int     `json:"nc2Count"`
	NC3Count                    int     `json:"nc3Count"`
	LeadToDealConversionPercent float64 `json:"leadToDealConversionPercent"`
	TotalDealsCount             int     `json:"totalDealsCount"`
	TotalTasksCount             int     `json:"totalTasksCount"`
	TaskCompletionPercent       float64 `json:"taskCompletionPercent"`
	RetentionRate               float64 `json:"retentionRate"`
	AvgCallDurationSec          int     `json:"avgCallDurationSec"`
	FollowupComplianceRate      float64 `json:"followupComplianceRate"`
}

// Retention is the hourly called-percentage series for today, truncated at
// the current business hour.
type Retention struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// WeekdayCalls aggregates call volume and average duration per weekday.
type WeekdayCalls struct {
	Labels         []string `json:"labels"`
	AvgDurationSec []int    `json:"avgDurationSec"`
	CallCounts     []int    `json:"callCounts"`
}

// Compliance splits recent leads by follow-up state.
type Compliance struct {
	Called              int `json:"called"`
	NotCalled           int `json:"notCalled"`
	ModifiedWithoutCall int `json:"modifiedWithoutCall"`
}

// OverdueFollowup is one uncalled lead sitting past the overdue threshold.
type OverdueFollowup struct {
	Name                string `json:"name"`
	Owner               string `json:"owner"`
	Phone               string `json:"phone"`
	MinutesSinceCreated int    `json:"minutesSinceCreated"`
}

// Snapshot is the complete metrics tree written to data/metrics.json.
type Snapshot struct {
	GeneratedAt         time.Time             `json:"generatedAt"`
	KPIs                KPIs                  `json:"kpis"`
	Retention           Retention             `json:"retention"`
	Calls               WeekdayCalls          `json:"calls"`
	Compliance          Compliance            `json:"compliance"`
	NCTime              funnel.TimeInsights   `json:"ncTime"`
	NCLadder            funnel.Ladder         `json:"ncLadder"`
	CategoryConversions []category.Conversion `json:"categoryConversions"`
	TopBookingAreas     []category.Area       `json:"topBookingAreas"`
	LatestLeadsToday    []crm.Lead            `json:"latestLeadsToday"`
	OverdueFollowups    []OverdueFollowup     `json:"overdueFollowups"`
	OwnerStats          []ownerstats.Row      `json:"ownerStats"`
	Engagement          engagement.Report     `json:"engagement"`
	RepeatLoss          engagement.RepeatLoss `json:"repeatLoss"`
	WinBack             engagement.WinBack    `json:"winBack"`
}

// Build assembles the metrics snapshot from the four raw record
// collections. The clock pins every window predicate to one business
// timezone so repeated runs over the same inputs are reproducible.
func Build(leads, calls, deals, tasks []crm.Record, cfg Config, clock *window.Clock) Snapshot {
	cfg = cfg.withDefaults()

	projCalls := make([]crm.Call, 0, len(calls))
	for _, r := range calls {
		projCalls = append(projCalls, crm.ProjectCall(r))
	}
	callSet := match.CallPhoneSet(projCalls)
	calledByPhone := func(key string) bool {
		_, ok := callSet[key]
		return ok
	}

	projLeads := make([]crm.Lead, 0, len(leads))
	for _, r := range leads {
		projLeads = append(projLeads, crm.ProjectLead(r, match.NormalizePhone, calledByPhone))
	}
	projDeals := make([]crm.Deal, 0, len(deals))
	for _, r := range deals {
		projDeals = append(projDeals, crm.ProjectDeal(r))
	}
	projTasks := make([]crm.Task, 0, len(tasks))
	for _, r := range tasks {
		projTasks = append(projTasks, crm.ProjectTask(r))
	}

	var snap Snapshot
	snap.GeneratedAt = clock.Now()

	var todaysLeads []crm.Lead
	for _, l := range projLeads {
		if clock.IsToday(l.CreatedAt) {
			todaysLeads = append(todaysLeads, l)
		}
	}
	todaysDeals, todaysTasks := 0, 0
	completedTasks := 0
	for _, d := range projDeals {
		if clock.IsToday(d.CreatedAt) {
			todaysDeals++
		}
	}
	for _, t := range projTasks {
		if !clock.IsToday(t.CreatedAt) {
			continue
		}
		todaysTasks++
		if t.Completed() {
			completedTasks++
		}
	}

	// The first lookback-window leads in source order, capped. Compliance
	// and overdue follow-ups are computed over this same capped slice so
	// the dashboard cards agree with the table beneath them.
	var latest []crm.Lead
	for _, l := range projLeads {
		if !clock.WithinLastDays(l.CreatedAt, cfg.LookbackDays) {
			continue
		}
		latest = append(latest, l)
		if len(latest) >= maxLatestLeads {
			break
		}
	}
	snap.LatestLeadsToday = latest

	for _, l := range latest {
		if l.Called {
			snap.Compliance.Called++
			continue
		}
		snap.Compliance.NotCalled++
		if !l.ModifiedAt.IsZero() {
			snap.Compliance.ModifiedWithoutCall++
		}
	}

	now := clock.Now()
	for _, l := range latest {
		if l.Called || l.CreatedAt.IsZero() {
			continue
		}
		minutes := int(now.Sub(l.CreatedAt).Minutes())
		if minutes < cfg.OverdueMinutes {
			continue
		}
		snap.OverdueFollowups = append(snap.OverdueFollowups, OverdueFollowup{
			Name:                l.Name,
			Owner:               l.Owner,
			Phone:               l.Phone,
			MinutesSinceCreated: minutes,
		})
		if len(snap.OverdueFollowups) >= maxOverdueRows {
			break
		}
	}

	snap.Retention = buildRetention(todaysLeads, clock)
	snap.Calls = buildWeekdayCalls(projCalls, clock)

	engine := funnel.New(projLeads, projCalls, clock, cfg.NCLookbackDays, cfg.SLA, cfg.MinHourVolume)
	counts := engine.Counts()
	snap.NCTime = engine.TimeInsights()
	snap.NCLadder = engine.Ladder()

	snap.CategoryConversions = category.Conversions(leads, projDeals, cfg.CategoryFields, clock, cfg.LookbackDays)
	snap.TopBookingAreas = cfg.Gazetteer.TopAreas(projDeals, cfg.TopAreas)
	snap.OwnerStats = ownerstats.Build(projLeads, projDeals, projTasks, clock, cfg.LookbackDays, cfg.OwnerExclusions)

	idx := match.BuildIndex(projLeads, projCalls)
	snap.Engagement = engagement.Build(idx, clock)
	snap.RepeatLoss = engagement.BuildRepeatLoss(projLeads, idx)
	snap.WinBack = engagement.BuildWinBack(projLeads, idx, clock)

	snap.KPIs = KPIs{
		TodaysLeadsCount:            len(todaysLeads),
		NC1Count:                    counts.NC1,
		NC2Count:                    counts.NC2,
		NC3Count:                    counts.NC3,
		LeadToDealConversionPercent: pct(todaysDeals, len(todaysLeads)+todaysDeals),
		TotalDealsCount:             todaysDeals,
		TotalTasksCount:             todaysTasks,
		TaskCompletionPercent:       pct(completedTasks, todaysTasks),
		AvgCallDurationSec:          avgPositiveDuration(projCalls),
		FollowupComplianceRate:      pct(snap.Compliance.Called, len(latest)),
	}
	if n := len(snap.Retention.Values); n > 0 {
		snap.KPIs.RetentionRate = snap.Retention.Values[n-1]
	}
	return snap
}

// buildRetention computes, for each business hour of today up to the
// current one, the called percentage of leads created in that hour.
func buildRetention(todaysLeads []crm.Lead, clock *window.Clock) Retention {
	lastHour := clock.HourOf(clock.Now())
	if lastHour < 0 {
		lastHour = 23
	}
	ret := Retention{
		Labels: make([]string, 0, lastHour+1),
		Values: make([]float64, 0, lastHour+1),
	}
	for h := 0; h <= lastHour; h++ {
		ret.Labels = append(ret.Labels, window.HourLabel(h))
		inHour, called := 0, 0
		for _, l := range todaysLeads {
			if clock.HourOf(l.CreatedAt) != h {
				continue
			}
			inHour++
			if l.Called {
				called++
			}
		}
		ret.Values = append(ret.Values, pct(called, inHour))
	}
	return ret
}

// buildWeekdayCalls buckets every call by business weekday. Calls without
// a parseable start time count toward the current weekday rather than
// being dropped, keeping totals consistent with the raw collection.
func buildWeekdayCalls(calls []crm.Call, clock *window.Clock) WeekdayCalls {
	wc := WeekdayCalls{
		Labels:         []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		AvgDurationSec: make([]int, 7),
		CallCounts:     make([]int, 7),
	}
	durSums := make([]float64, 7)
	for _, c := range calls {
		at := c.StartedAt
		if at.IsZero() {
			at = clock.Now()
		}
		idx := clock.WeekdayIndex(at)
		wc.CallCounts[idx]++
		durSums[idx] += c.DurationSeconds
	}
	for i, sum := range durSums {
		if wc.CallCounts[i] > 0 {
			wc.AvgDurationSec[i] = int(math.Round(sum / float64(wc.CallCounts[i])))
		}
	}
	return wc
}

func avgPositiveDuration(calls []crm.Call) int {
	sum, n := 0.0, 0
	for _, c := range calls {
		if c.DurationSeconds > 0 {
			sum += c.DurationSeconds
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(sum / float64(n)))
}

func pct(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 10
}
