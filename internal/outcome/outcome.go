// Package outcome correlates same-day call durations with lead outcomes:
// each connected call is joined back to its lead (id first, then PhoneKey),
// the lead outcome is classified by keyword lists, and per-agent duration
// buckets are ranked to find each agent's conversion "sweet spot".
package outcome

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/match"
	"github.com/sells-group/crm-pulse/internal/window"
)

// Outcome classifies the state of a lead after contact.
type Outcome string

const (
	Converted Outcome = "converted"
	Rejected  Outcome = "rejected"
	Pending   Outcome = "pending"
)

// Classifier resolves a lead outcome from status and sub-status text.
// Keyword lists are maintainer-curated and configurable; conversion
// keywords take precedence when both lists match.
type Classifier struct {
	ConvertKeywords []string
	RejectKeywords  []string
}

// DefaultClassifier returns the curated default keyword lists.
func DefaultClassifier() Classifier {
	return Classifier{
		ConvertKeywords: []string{"nc2", "nc3", "enrolled", "won", "customer", "call back later"},
		RejectKeywords: []string{
			"rejected", "wrong number", "duplicate", "price is high",
			"cancelled", "slot not available", "looking for job", "just enquiring",
		},
	}
}

// Classify maps a lead's combined status text to an outcome.
func (c Classifier) Classify(l crm.Lead) Outcome {
	text := strings.ToLower(l.LeadStatus + " " + l.LeadSubStatus)
	for _, kw := range c.ConvertKeywords {
		if strings.Contains(text, kw) {
			return Converted
		}
	}
	for _, kw := range c.RejectKeywords {
		if strings.Contains(text, kw) {
			return Rejected
		}
	}
	return Pending
}

// Buckets is the coarse 5-way duration partition used for outcome
// correlation, in ladder order.
var Buckets = []string{"<60s", "60-120s", "120-180s", "180-300s", "300s+"}

// Bucket maps a positive duration onto the coarse partition.
func Bucket(seconds float64) string {
	switch {
	case seconds < 60:
		return "<60s"
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

// BucketDetail is one (agent, bucket) cell: distinct phones seen and how
// many of them converted or were rejected.
type BucketDetail struct {
	Bucket         string  `json:"bucket"`
	Phones         int     `json:"phones"`
	Converted      int     `json:"converted"`
	Rejected       int     `json:"rejected"`
	ConversionRate float64 `json:"conversionRate"`
	RejectionRate  float64 `json:"rejectionRate"`
}

// RateRef names a bucket together with the rate that selected it.
type RateRef struct {
	Bucket string  `json:"bucket"`
	Rate   float64 `json:"rate"`
	Count  int     `json:"count"`
}

// SweetSpot is the bucket maximizing conversion rate minus rejection rate.
type SweetSpot struct {
	Bucket         string  `json:"bucket"`
	Score          float64 `json:"score"`
	ConversionRate float64 `json:"conversionRate"`
	RejectionRate  float64 `json:"rejectionRate"`
}

// AgentInsight is one agent's duration-outcome summary.
type AgentInsight struct {
	Agent         string         `json:"agent"`
	TopConversion *RateRef       `json:"topConversion"`
	TopRejection  *RateRef       `json:"topRejection"`
	SweetSpot     *SweetSpot     `json:"sweetSpot"`
	BucketDetails []BucketDetail `json:"bucketDetails"`
}

type bucketAccum struct {
	phones    map[string]struct{}
	converted map[string]struct{}
	rejected  map[string]struct{}
}

// Correlate joins today's connected calls to leads through the index and
// derives per-agent insights. Calls that resolve to no lead are excluded.
// Agents appear sorted by name for deterministic output.
func Correlate(calls []crm.Call, idx *match.Index, cls Classifier, clock *window.Clock) []AgentInsight {
	agents := map[string]map[string]*bucketAccum{}
	var order []string

	for _, c := range calls {
		if !clock.IsToday(c.StartedAt) || c.DurationSeconds <= 0 {
			continue
		}
		lead, ok := idx.ResolveLead(c)
		if !ok {
			continue
		}
		bucket := Bucket(c.DurationSeconds)
		phone := match.CallPhone(c)

		buckets := agents[c.Owner]
		if buckets == nil {
			buckets = map[string]*bucketAccum{}
			agents[c.Owner] = buckets
			order = append(order, c.Owner)
		}
		acc := buckets[bucket]
		if acc == nil {
			acc = &bucketAccum{
				phones:    map[string]struct{}{},
				converted: map[string]struct{}{},
				rejected:  map[string]struct{}{},
			}
			buckets[bucket] = acc
		}
		acc.phones[phone] = struct{}{}
		switch cls.Classify(lead) {
		case Converted:
			acc.converted[phone] = struct{}{}
		case Rejected:
			acc.rejected[phone] = struct{}{}
		}
	}

	sort.Strings(order)
	out := make([]AgentInsight, 0, len(agents))
	for _, agent := range order {
		out = append(out, summarizeAgent(agent, agents[agent]))
	}
	return out
}

// summarizeAgent ranks the agent's buckets. Iteration follows the fixed
// bucket ladder, so ties resolve to the first-encountered (shortest)
// bucket deterministically.
func summarizeAgent(agent string, buckets map[string]*bucketAccum) AgentInsight {
	ins := AgentInsight{Agent: agent}
	for _, bucket := range Buckets {
		acc, ok := buckets[bucket]
		if !ok {
			continue
		}
		phones := len(acc.phones)
		denom := phones
		if denom == 0 {
			denom = 1
		}
		convRate := round3(float64(len(acc.converted)) / float64(denom))
		rejRate := round3(float64(len(acc.rejected)) / float64(denom))
		ins.BucketDetails = append(ins.BucketDetails, BucketDetail{
			Bucket:         bucket,
			Phones:         phones,
			Converted:      len(acc.converted),
			Rejected:       len(acc.rejected),
			ConversionRate: convRate,
			RejectionRate:  rejRate,
		})
		if ins.TopConversion == nil || convRate > ins.TopConversion.Rate {
			ins.TopConversion = &RateRef{Bucket: bucket, Rate: convRate, Count: len(acc.converted)}
		}
		if ins.TopRejection == nil || rejRate > ins.TopRejection.Rate {
			ins.TopRejection = &RateRef{Bucket: bucket, Rate: rejRate, Count: len(acc.rejected)}
		}
		if score := round3(convRate - rejRate); ins.SweetSpot == nil || score > ins.SweetSpot.Score {
			ins.SweetSpot = &SweetSpot{Bucket: bucket, Score: score, ConversionRate: convRate, RejectionRate: rejRate}
		}
	}
	return ins
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
