// Package callstats computes the call-analytics snapshot: duration-bucket,
// status and type distributions, hourly talk time, and per-owner summaries
// over a set of projected call activities.
package callstats

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/window"
)

// Buckets is the fixed duration partition, in ladder order. Every
// non-negative duration maps to exactly one bucket.
var Buckets = []string{"0s", "<30s", "30-60s", "60-120s", "120-180s", "180-300s", "300s+"}

// Bucket maps a duration in seconds onto the 7-way partition using a
// strict less-than ladder. Non-finite or non-positive durations are "0s".
func Bucket(seconds float64) string {
	switch {
	case math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0:
		return "0s"
	case seconds < 30:
		return "<30s"
	case seconds < 60:
		return "30-60s"
	case seconds < 120:
		return "60-120s"
	case seconds < 180:
		return "120-180s"
	case seconds < 300:
		return "180-300s"
	default:
		return "300s+"
	}
}

// BucketRow is one row of the overall bucket distribution.
type BucketRow struct {
	Bucket  string  `json:"bucket"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// StatusRow is one row of the call-status distribution.
type StatusRow struct {
	Status  string  `json:"status"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// TypeRow is one row of the Inbound/Outbound distribution.
type TypeRow struct {
	Type    string  `json:"type"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// OwnerRow summarizes one owner's calling activity.
type OwnerRow struct {
	Owner                 string      `json:"owner"`
	TotalCalls            int         `json:"totalCalls"`
	ConnectedCalls        int         `json:"connectedCalls"`
	AvgDurationSec        float64     `json:"avgDurationSec"`
	ConnectionRatePercent float64     `json:"connectionRatePercent"`
	AvgBookingSeconds     float64     `json:"avgBookingSeconds"`
	PeakHour              string      `json:"peakHour,omitempty"`
	BucketBreakdown       []BucketRow `json:"bucketBreakdown"`
	StatusBreakdown       []StatusRow `json:"statusBreakdown"`
}

// Report is the call-analytics snapshot.
type Report struct {
	GeneratedAt       time.Time   `json:"generatedAt"`
	TotalCalls        int         `json:"totalCalls"`
	ConnectedCalls    int         `json:"connectedCalls"`
	AvgDurationSec    float64     `json:"avgDurationSec"`
	MedianDurationSec float64     `json:"medianDurationSec"`
	BucketSummary     []BucketRow `json:"bucketSummary"`
	StatusSummary     []StatusRow `json:"statusSummary"`
	TypeSummary       []TypeRow   `json:"typeSummary"`
	TotalTalkSeconds  float64     `json:"totalTalkSeconds"`
	HourlyTalkSeconds []float64   `json:"hourlyTalkSeconds"`
	OwnerSummary      []OwnerRow  `json:"ownerSummary"`
	HourlyCounts      []int       `json:"hourlyCounts"`
}

type ownerAccum struct {
	calls       int
	connected   int
	durationSum float64
	buckets     map[string]int
	statuses    map[string]int
	hours       map[int]int
}

// Analyze computes the call-analytics snapshot over the given calls. The
// clock pins hour-of-day bucketing to the business timezone.
func Analyze(calls []crm.Call, clock *window.Clock) Report {
	total := len(calls)
	var durations []float64
	buckets := map[string]int{}
	statuses := map[string]int{}
	types := map[string]int{}
	owners := map[string]*ownerAccum{}
	hourlyCounts := make([]int, 24)
	hourlyTalk := make([]float64, 24)
	var totalTalk float64

	for _, c := range calls {
		bucket := Bucket(c.DurationSeconds)
		buckets[bucket]++
		if c.DurationSeconds > 0 {
			durations = append(durations, c.DurationSeconds)
			totalTalk += c.DurationSeconds
		}
		statuses[c.Status]++
		types[c.Type]++

		acc := owners[c.Owner]
		if acc == nil {
			acc = &ownerAccum{buckets: map[string]int{}, statuses: map[string]int{}, hours: map[int]int{}}
			owners[c.Owner] = acc
		}
		acc.calls++
		acc.buckets[bucket]++
		acc.statuses[c.Status]++
		if c.DurationSeconds > 0 {
			acc.connected++
			acc.durationSum += c.DurationSeconds
		}

		if h := clock.HourOf(c.StartedAt); h >= 0 {
			hourlyCounts[h]++
			acc.hours[h]++
			if c.DurationSeconds > 0 {
				hourlyTalk[h] += c.DurationSeconds
			}
		}
	}

	sort.Float64s(durations)

	return Report{
		GeneratedAt:       clock.Now().UTC(),
		TotalCalls:        total,
		ConnectedCalls:    len(durations),
		AvgDurationSec:    round1(mean(durations)),
		MedianDurationSec: round1(median(durations)),
		BucketSummary:     bucketRows(buckets, total),
		StatusSummary:     statusRows(statuses, total),
		TypeSummary:       typeRows(types, total),
		TotalTalkSeconds:  totalTalk,
		HourlyTalkSeconds: hourlyTalk,
		OwnerSummary:      ownerRows(owners),
		HourlyCounts:      hourlyCounts,
	}
}

// FilterLookback keeps calls whose start time falls within the trailing
// days window. days <= 0 keeps everything.
func FilterLookback(calls []crm.Call, clock *window.Clock, days int) []crm.Call {
	if days <= 0 {
		return calls
	}
	out := make([]crm.Call, 0, len(calls))
	for _, c := range calls {
		if clock.WithinLastDays(c.StartedAt, days) {
			out = append(out, c)
		}
	}
	return out
}

func ownerRows(owners map[string]*ownerAccum) []OwnerRow {
	rows := make([]OwnerRow, 0, len(owners))
	for owner, acc := range owners {
		avgBooking := 0.0
		if acc.connected > 0 {
			avgBooking = round1(acc.durationSum / float64(acc.connected))
		}
		rows = append(rows, OwnerRow{
			Owner:                 owner,
			TotalCalls:            acc.calls,
			ConnectedCalls:        acc.connected,
			AvgDurationSec:        avgBooking,
			ConnectionRatePercent: pct(acc.connected, acc.calls),
			AvgBookingSeconds:     avgBooking,
			PeakHour:              peakHour(acc.hours),
			BucketBreakdown:       bucketRows(acc.buckets, acc.calls),
			StatusBreakdown:       statusRows(acc.statuses, acc.calls),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalCalls != rows[j].TotalCalls {
			return rows[i].TotalCalls > rows[j].TotalCalls
		}
		return rows[i].Owner < rows[j].Owner
	})
	return rows
}

// peakHour returns the modal hour as "HH:00", or "" with no timestamped
// calls. Earlier hours win ties.
func peakHour(hours map[int]int) string {
	best, bestCount := -1, 0
	for h := 0; h < 24; h++ {
		if hours[h] > bestCount {
			best, bestCount = h, hours[h]
		}
	}
	if best < 0 {
		return ""
	}
	return window.HourLabel(best)
}

func bucketRows(counts map[string]int, total int) []BucketRow {
	rows := make([]BucketRow, 0, len(counts))
	for bucket, count := range counts {
		rows = append(rows, BucketRow{Bucket: bucket, Count: count, Percent: pct(count, total)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Bucket < rows[j].Bucket
	})
	return rows
}

func statusRows(counts map[string]int, total int) []StatusRow {
	rows := make([]StatusRow, 0, len(counts))
	for status, count := range counts {
		rows = append(rows, StatusRow{Status: status, Count: count, Percent: pct(count, total)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Status < rows[j].Status
	})
	return rows
}

func typeRows(counts map[string]int, total int) []TypeRow {
	rows := make([]TypeRow, 0, len(counts))
	for typ, count := range counts {
		rows = append(rows, TypeRow{Type: typ, Count: count, Percent: pct(count, total)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Type < rows[j].Type
	})
	return rows
}

func mean(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// median applies the standard midpoint rule on an ascending-sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func pct(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(count) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
