package outcome

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/match"
	"github.com/sells-group/crm-pulse/internal/window"
)

func fixedClock(t *testing.T) *window.Clock {
	t.Helper()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	clock, err := window.Fixed("Asia/Kolkata", now)
	require.NoError(t, err)
	return clock
}

func TestClassify(t *testing.T) {
	cls := DefaultClassifier()
	tests := []struct {
		name string
		lead crm.Lead
		want Outcome
	}{
		{"nc2 substatus converts", crm.Lead{LeadSubStatus: "NC2"}, Converted},
		{"won status converts", crm.Lead{LeadStatus: "Deal Won"}, Converted},
		{"rejected status", crm.Lead{LeadStatus: "Rejected"}, Rejected},
		{"wrong number", crm.Lead{LeadSubStatus: "Wrong Number"}, Rejected},
		{"convert keyword wins over reject", crm.Lead{LeadStatus: "Rejected", LeadSubStatus: "NC3"}, Converted},
		{"no keywords", crm.Lead{LeadStatus: "New"}, Pending},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cls.Classify(tc.lead))
		})
	}
}

func TestBucket(t *testing.T) {
	assert.Equal(t, "<60s", Bucket(10))
	assert.Equal(t, "60-120s", Bucket(60))
	assert.Equal(t, "120-180s", Bucket(150))
	assert.Equal(t, "180-300s", Bucket(299))
	assert.Equal(t, "300s+", Bucket(300))
}

func TestCorrelate(t *testing.T) {
	clock := fixedClock(t)
	now := clock.Now()

	leads := []crm.Lead{
		{ID: "l1", NormalizedPhone: "1111111111", LeadSubStatus: "NC2"},
		{ID: "l2", NormalizedPhone: "2222222222", LeadStatus: "Rejected"},
		{ID: "l3", NormalizedPhone: "3333333333", LeadStatus: "New"},
	}
	calls := []crm.Call{
		{Owner: "Asha", DialedPhone: "1111111111", DurationSeconds: 90, StartedAt: now},
		{Owner: "Asha", DialedPhone: "2222222222", DurationSeconds: 30, StartedAt: now},
		{Owner: "Asha", DialedPhone: "3333333333", DurationSeconds: 95, StartedAt: now},
		// Zero-duration and unresolvable calls are skipped.
		{Owner: "Asha", DialedPhone: "1111111111", DurationSeconds: 0, StartedAt: now},
		{Owner: "Asha", DialedPhone: "0000000000", DurationSeconds: 60, StartedAt: now},
		// Yesterday's call is skipped.
		{Owner: "Asha", DialedPhone: "1111111111", DurationSeconds: 60, StartedAt: now.Add(-26 * time.Hour)},
		{Owner: "Ravi", DialedPhone: "2222222222", DurationSeconds: 200, StartedAt: now},
	}
	idx := match.BuildIndex(leads, calls)

	insights := Correlate(calls, idx, DefaultClassifier(), clock)
	require.Len(t, insights, 2)

	asha := insights[0]
	assert.Equal(t, "Asha", asha.Agent)
	require.Len(t, asha.BucketDetails, 2)

	// <60s bucket: one rejected phone.
	short := asha.BucketDetails[0]
	assert.Equal(t, "<60s", short.Bucket)
	assert.Equal(t, 1, short.Phones)
	assert.Equal(t, 1, short.Rejected)
	assert.InDelta(t, 1.0, short.RejectionRate, 0.001)

	// 60-120s bucket: one converted, one pending.
	mid := asha.BucketDetails[1]
	assert.Equal(t, "60-120s", mid.Bucket)
	assert.Equal(t, 2, mid.Phones)
	assert.Equal(t, 1, mid.Converted)
	assert.InDelta(t, 0.5, mid.ConversionRate, 0.001)

	require.NotNil(t, asha.SweetSpot)
	assert.Equal(t, "60-120s", asha.SweetSpot.Bucket)
	assert.InDelta(t, 0.5, asha.SweetSpot.Score, 0.001)
	require.NotNil(t, asha.TopConversion)
	assert.Equal(t, "60-120s", asha.TopConversion.Bucket)
	require.NotNil(t, asha.TopRejection)
	assert.Equal(t, "<60s", asha.TopRejection.Bucket)

	ravi := insights[1]
	assert.Equal(t, "Ravi", ravi.Agent)
	require.Len(t, ravi.BucketDetails, 1)
	assert.Equal(t, "180-300s", ravi.BucketDetails[0].Bucket)
	assert.Equal(t, 1, ravi.BucketDetails[0].Rejected)
}

func TestCorrelateResolvesByRelatedID(t *testing.T) {
	clock := fixedClock(t)
	now := clock.Now()
	leads := []crm.Lead{{ID: "l1", LeadSubStatus: "NC3"}}
	calls := []crm.Call{{Owner: "Asha", RelatedID: "l1", DurationSeconds: 45, StartedAt: now}}
	idx := match.BuildIndex(leads, calls)

	insights := Correlate(calls, idx, DefaultClassifier(), clock)
	require.Len(t, insights, 1)
	assert.Equal(t, 1, insights[0].BucketDetails[0].Converted)
}

func TestCorrelateEmpty(t *testing.T) {
	assert.Empty(t, Correlate(nil, match.BuildIndex(nil, nil), DefaultClassifier(), fixedClock(t)))
}
