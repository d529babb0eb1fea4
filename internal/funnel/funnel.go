// Package funnel implements the NC ladder: stage classification of leads
// that have missed 1, 2, or 3+ contact attempts, direct and cumulative
// funnels, inter-stage elapsed-time statistics, SLA breach counts, and the
// hourly contact-time effectiveness score used to pick ideal calling hours.
package funnel

import (
	"math"
	"regexp"
	"strings"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/window"
)

// Stage is a lead's position on the no-contact ladder.
type Stage string

const (
	NC1 Stage = "NC1"
	NC2 Stage = "NC2"
	NC3 Stage = "NC3"
)

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// ParseStage resolves a sub-status text to an NC stage by stripping
// non-alphanumerics and upper-casing. Anything else has no stage and is
// excluded from ladder computations.
func ParseStage(subStatus string) (Stage, bool) {
	t := nonAlnum.ReplaceAllString(strings.ToUpper(subStatus), "")
	switch t {
	case "NC1":
		return NC1, true
	case "NC2":
		return NC2, true
	case "NC3":
		return NC3, true
	}
	return "", false
}

// SLAConfig holds the stage-transition SLA thresholds in hours.
type SLAConfig struct {
	NC1ToNC2Hours float64 `json:"nc1ToNc2Hours"`
	NC2ToNC3Hours float64 `json:"nc2ToNc3Hours"`
}

// DefaultSLA returns the default transition SLAs.
func DefaultSLA() SLAConfig {
	return SLAConfig{NC1ToNC2Hours: 4, NC2ToNC3Hours: 24}
}

// DefaultMinHourVolume is the minimum calls an hour needs before it can be
// selected as the ideal contact hour.
const DefaultMinHourVolume = 20

// StageCounts holds per-stage lead counts.
type StageCounts struct {
	NC1 int `json:"nc1"`
	NC2 int `json:"nc2"`
	NC3 int `json:"nc3"`
}

// Progression holds stage-transition rates and elapsed-time averages.
type Progression struct {
	NC1ToNC2Percent  float64 `json:"nc1ToNc2Percent"`
	NC2ToNC3Percent  float64 `json:"nc2ToNc3Percent"`
	AvgHoursNC1ToNC2 float64 `json:"avgHoursNc1ToNc2"`
	AvgHoursNC2ToNC3 float64 `json:"avgHoursNc2ToNc3"`
}

// SLAReport counts leads sitting past their stage SLA.
type SLAReport struct {
	NC1ToNC2Hours float64 `json:"nc1ToNc2Hours"`
	NC2ToNC3Hours float64 `json:"nc2ToNc3Hours"`
	OverdueNC1    int     `json:"overdueNc1"`
	OverdueNC2    int     `json:"overdueNc2"`
}

// StageIdeal is the best contact hour for one stage.
type StageIdeal struct {
	Hour  string  `json:"hour"`
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

// Ladder is the NC ladder section of the metrics snapshot.
type Ladder struct {
	LookbackDays int                   `json:"lookbackDays"`
	Funnel       StageCounts           `json:"funnel"`
	DirectFunnel StageCounts           `json:"directFunnel"`
	Progression  Progression           `json:"progression"`
	SLA          SLAReport             `json:"sla"`
	IdealByStage map[string]StageIdeal `json:"idealByStage"`
}

// TimeInsights is the hourly NC series plus ideal-hour KPIs.
type TimeInsights struct {
	LookbackDays int       `json:"lookbackDays"`
	IdealHour    string    `json:"idealHour"`
	IdealScore   float64   `json:"idealScore"`
	PeakNC1Hour  string    `json:"peakNC1Hour"`
	PeakNC1Count int       `json:"peakNC1Count"`
	PeakNC2Hour  string    `json:"peakNC2Hour"`
	PeakNC2Count int       `json:"peakNC2Count"`
	Labels       []string  `json:"labels"`
	NC1          []int     `json:"nc1"`
	NC2          []int     `json:"nc2"`
	Scores       []float64 `json:"scores"`
}

// HourRow aggregates one hour of day across the lookback window.
type HourRow struct {
	Hour                   int
	NC1, NC2, NC3          int
	Calls                  int
	ConnectedLike          int
	DurationSum            float64
	Score                  float64
	AvgDurationSec         float64
	ConnectLikeRatePercent float64
}

// stageRow is one lead reduced to what the ladder needs.
type stageRow struct {
	stage        Stage
	elapsedHours float64
	hasElapsed   bool
	modifiedHour int
}

// Engine computes ladder and contact-time outputs for one lookback window.
type Engine struct {
	clock        *window.Clock
	lookbackDays int
	sla          SLAConfig
	minVolume    int

	rows  []stageRow
	hours [24]HourRow
}

// New builds an Engine over leads and calls already projected to canonical
// shapes. Leads outside the lookback window or without a resolvable stage
// are excluded; calls outside the window are ignored for hourly scoring.
func New(leads []crm.Lead, calls []crm.Call, clock *window.Clock, lookbackDays int, sla SLAConfig, minHourVolume int) *Engine {
	if minHourVolume <= 0 {
		minHourVolume = DefaultMinHourVolume
	}
	e := &Engine{clock: clock, lookbackDays: lookbackDays, sla: sla, minVolume: minHourVolume}
	for h := range e.hours {
		e.hours[h].Hour = h
	}

	for _, l := range leads {
		if !clock.WithinLastDays(l.CreatedAt, lookbackDays) {
			continue
		}
		stage, ok := ParseStage(l.LeadSubStatus)
		if !ok {
			continue
		}
		row := stageRow{stage: stage, modifiedHour: -1}
		// Elapsed time is modified minus created; the ladder treats the
		// last CRM modification as the stage-entry moment.
		modified := l.ModifiedAt
		if modified.IsZero() {
			modified = l.CreatedAt
		}
		if !l.CreatedAt.IsZero() && !modified.IsZero() {
			row.elapsedHours = math.Max(0, modified.Sub(l.CreatedAt).Hours())
			row.hasElapsed = true
		}
		// Hourly NC density buckets on modification time, not creation,
		// since it reflects when the CRM status was last set.
		if h := clock.HourOf(modified); h >= 0 {
			row.modifiedHour = h
			switch stage {
			case NC1:
				e.hours[h].NC1++
			case NC2:
				e.hours[h].NC2++
			case NC3:
				e.hours[h].NC3++
			}
		}
		e.rows = append(e.rows, row)
	}

	for _, c := range calls {
		if !clock.WithinLastDays(c.StartedAt, lookbackDays) {
			continue
		}
		h := clock.HourOf(c.StartedAt)
		if h < 0 {
			continue
		}
		e.hours[h].Calls++
		e.hours[h].DurationSum += c.DurationSeconds
		if c.DurationSeconds >= 30 {
			// Proxy for a successful connection.
			e.hours[h].ConnectedLike++
		}
	}
	e.score()
	return e
}

// score computes the composite contact-time score per hour:
// 0.55*connect-likelihood + 0.30*capped average depth + 0.15*volume share.
func (e *Engine) score() {
	maxCalls := 1
	for _, h := range e.hours {
		if h.Calls > maxCalls {
			maxCalls = h.Calls
		}
	}
	for i := range e.hours {
		h := &e.hours[i]
		var avgDur, connectRate float64
		if h.Calls > 0 {
			avgDur = h.DurationSum / float64(h.Calls)
			connectRate = float64(h.ConnectedLike) / float64(h.Calls)
		}
		volumeNorm := float64(h.Calls) / float64(maxCalls)
		h.AvgDurationSec = math.Round(avgDur)
		h.ConnectLikeRatePercent = round1(connectRate * 100)
		h.Score = round3(0.55*connectRate + 0.30*(math.Min(avgDur, 180)/180) + 0.15*volumeNorm)
	}
}

// Hours exposes the per-hour aggregates (read-only by convention).
func (e *Engine) Hours() []HourRow { return e.hours[:] }

// Counts returns the direct per-stage counts.
func (e *Engine) Counts() StageCounts {
	var c StageCounts
	for _, r := range e.rows {
		switch r.stage {
		case NC1:
			c.NC1++
		case NC2:
			c.NC2++
		case NC3:
			c.NC3++
		}
	}
	return c
}

// Ladder computes the full ladder section.
func (e *Engine) Ladder() Ladder {
	direct := e.Counts()
	return Ladder{
		LookbackDays: e.lookbackDays,
		// Cumulative funnel: each upstream stage includes everything
		// downstream ("at least reached this stage").
		Funnel: StageCounts{
			NC1: direct.NC1 + direct.NC2 + direct.NC3,
			NC2: direct.NC2 + direct.NC3,
			NC3: direct.NC3,
		},
		DirectFunnel: direct,
		Progression: Progression{
			NC1ToNC2Percent:  pct(direct.NC2, direct.NC1),
			NC2ToNC3Percent:  pct(direct.NC3, direct.NC2),
			AvgHoursNC1ToNC2: e.avgElapsed(NC2),
			AvgHoursNC2ToNC3: e.avgElapsed(NC3),
		},
		SLA: SLAReport{
			NC1ToNC2Hours: e.sla.NC1ToNC2Hours,
			NC2ToNC3Hours: e.sla.NC2ToNC3Hours,
			OverdueNC1:    e.overdue(NC1, e.sla.NC1ToNC2Hours),
			OverdueNC2:    e.overdue(NC2, e.sla.NC2ToNC3Hours),
		},
		IdealByStage: map[string]StageIdeal{
			"nc1": e.idealFor(NC1),
			"nc2": e.idealFor(NC2),
			"nc3": e.idealFor(NC3),
		},
	}
}

// TimeInsights computes the hourly NC series and ideal-hour KPIs. The
// ideal contact hour is scored on call effectiveness across all calls, not
// NC density, and requires the configured minimum hourly call volume.
func (e *Engine) TimeInsights() TimeInsights {
	out := TimeInsights{
		LookbackDays: e.lookbackDays,
		IdealHour:    "--",
		PeakNC1Hour:  "--",
		PeakNC2Hour:  "--",
		Labels:       make([]string, 24),
		NC1:          make([]int, 24),
		NC2:          make([]int, 24),
		Scores:       make([]float64, 24),
	}
	bestIdeal := -1
	peak1, peak2 := -1, -1
	for h, row := range e.hours {
		out.Labels[h] = window.HourLabel(h)
		out.NC1[h] = row.NC1
		out.NC2[h] = row.NC2
		out.Scores[h] = row.Score
		if peak1 < 0 || row.NC1 > e.hours[peak1].NC1 {
			peak1 = h
		}
		if peak2 < 0 || row.NC2 > e.hours[peak2].NC2 {
			peak2 = h
		}
		if row.Calls >= e.minVolume && (bestIdeal < 0 || row.Score > e.hours[bestIdeal].Score) {
			bestIdeal = h
		}
	}
	if peak1 >= 0 && e.hours[peak1].NC1 > 0 {
		out.PeakNC1Hour = window.HourLabel(peak1)
		out.PeakNC1Count = e.hours[peak1].NC1
	}
	if peak2 >= 0 && e.hours[peak2].NC2 > 0 {
		out.PeakNC2Hour = window.HourLabel(peak2)
		out.PeakNC2Count = e.hours[peak2].NC2
	}
	if bestIdeal >= 0 {
		out.IdealHour = window.HourLabel(bestIdeal)
		out.IdealScore = e.hours[bestIdeal].Score
	}
	return out
}

// idealFor picks the hour with the highest count for a stage, breaking
// ties by the contact-time score.
func (e *Engine) idealFor(stage Stage) StageIdeal {
	best := -1
	count := func(h HourRow) int {
		switch stage {
		case NC1:
			return h.NC1
		case NC2:
			return h.NC2
		default:
			return h.NC3
		}
	}
	for h := range e.hours {
		if best < 0 {
			best = h
			continue
		}
		ch, cb := count(e.hours[h]), count(e.hours[best])
		if ch > cb || (ch == cb && e.hours[h].Score > e.hours[best].Score) {
			best = h
		}
	}
	if best < 0 || count(e.hours[best]) == 0 {
		return StageIdeal{Hour: "--"}
	}
	return StageIdeal{
		Hour:  window.HourLabel(best),
		Count: count(e.hours[best]),
		Score: e.hours[best].Score,
	}
}

func (e *Engine) avgElapsed(stage Stage) float64 {
	var sum float64
	var n int
	for _, r := range e.rows {
		if r.stage == stage && r.hasElapsed {
			sum += r.elapsedHours
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round1(sum / float64(n))
}

func (e *Engine) overdue(stage Stage, slaHours float64) int {
	var n int
	for _, r := range e.rows {
		if r.stage == stage && r.hasElapsed && r.elapsedHours > slaHours {
			n++
		}
	}
	return n
}

func pct(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return round1(float64(num) / float64(den) * 100)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
