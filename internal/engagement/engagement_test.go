package engagement

import (
	"fmt"
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

func TestScore(t *testing.T) {
	clock := fixedClock(t)
	now := clock.Now()

	tests := []struct {
		name        string
		group       []crm.Lead
		wantScore   int
		wantRecency int
	}{
		{
			name:        "single fresh uncalled lead",
			group:       []crm.Lead{{CreatedAt: now.Add(-24 * time.Hour), LeadStatus: "New"}},
			wantScore:   55, // base 40 + recency 15
			wantRecency: 1,
		},
		{
			name: "repeat engaged group",
			group: []crm.Lead{
				{CreatedAt: now.Add(-48 * time.Hour), LeadStatus: "New", Called: true},
				{CreatedAt: now.Add(-72 * time.Hour), LeadStatus: "Rejected", Called: true},
			},
			wantScore:   100, // 40 + 30 calls + 15 repeat + 15 recency + 10 stages, capped
			wantRecency: 2,
		},
		{
			name:        "stale single lead",
			group:       []crm.Lead{{CreatedAt: now.Add(-60 * 24 * time.Hour), LeadStatus: "New"}},
			wantScore:   40,
			wantRecency: 60,
		},
		{
			name:        "empty group",
			group:       nil,
			wantScore:   0,
			wantRecency: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, recency := Score(tc.group, clock)
			assert.Equal(t, tc.wantScore, score)
			assert.Equal(t, tc.wantRecency, recency)
		})
	}
}

func TestBuildSplitsActiveAndRejected(t *testing.T) {
	clock := fixedClock(t)
	now := clock.Now()
	leads := []crm.Lead{
		{ID: "a", NormalizedPhone: "1111111111", LeadStatus: "New", CreatedAt: now.Add(-time.Hour), Called: true},
		{ID: "b", NormalizedPhone: "2222222222", LeadStatus: "Rejected", CreatedAt: now.Add(-time.Hour)},
		{ID: "c", NormalizedPhone: "3333333333", LeadStatus: "Converted", CreatedAt: now.Add(-100 * 24 * time.Hour)},
	}
	idx := match.BuildIndex(leads, nil)

	rep := Build(idx, clock)

	assert.Equal(t, 3, rep.Distribution.Total)
	require.Len(t, rep.TopRejected, 1)
	assert.Equal(t, "2222222222", rep.TopRejected[0].Phone)
	require.Len(t, rep.TopActive, 2)
	// Highest score first.
	assert.Equal(t, "1111111111", rep.TopActive[0].Phone)

	sum := rep.Distribution.High + rep.Distribution.Stable + rep.Distribution.AtRisk + rep.Distribution.Weak
	assert.Equal(t, rep.Distribution.Total, sum)
}

func TestBuildCapsTopLists(t *testing.T) {
	clock := fixedClock(t)
	now := clock.Now()
	var leads []crm.Lead
	for i := 0; i < 30; i++ {
		leads = append(leads, crm.Lead{
			ID:              fmt.Sprintf("l%d", i),
			NormalizedPhone: fmt.Sprintf("90000000%02d", i),
			LeadStatus:      "New",
			CreatedAt:       now.Add(-time.Hour),
		})
	}
	rep := Build(match.BuildIndex(leads, nil), clock)
	assert.Equal(t, 30, rep.Distribution.Total)
	assert.Len(t, rep.TopActive, 20)
}
