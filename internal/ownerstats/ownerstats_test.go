package ownerstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/window"
)

func fixedClock(t *testing.T) *window.Clock {
	t.Helper()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	clock, err := window.Fixed("Asia/Kolkata", now)
	require.NoError(t, err)
	return clock
}

func TestBuild(t *testing.T) {
	clock := fixedClock(t)
	now := clock.Now()
	yesterday := now.Add(-26 * time.Hour)

	leads := []crm.Lead{
		{Owner: "Asha", CreatedAt: now, Called: true},
		{Owner: "Asha", CreatedAt: now},
		{Owner: "Asha", CreatedAt: yesterday},
		{Owner: "Ravi", CreatedAt: now, Called: true},
	}
	deals := []crm.Deal{
		{Owner: "Asha", CreatedAt: now, OriginalCreatedAt: now.Add(-time.Hour)},
		// Converted from a lead created outside the window: not counted.
		{Owner: "Ravi", CreatedAt: now, OriginalCreatedAt: now.Add(-20 * 24 * time.Hour)},
	}
	tasks := []crm.Task{
		{Owner: "Asha", CreatedAt: now, Status: "Completed"},
		{Owner: "Asha", CreatedAt: now, Status: "Open"},
		// Not today's task, ignored.
		{Owner: "Asha", CreatedAt: yesterday, Status: "Completed"},
	}

	rows := Build(leads, deals, tasks, clock, 7, nil)
	require.Len(t, rows, 2)

	asha := rows[0]
	assert.Equal(t, "Asha", asha.Owner)
	assert.Equal(t, 2, asha.TodaysLeads)
	assert.Equal(t, 1, asha.CalledLeads)
	assert.Equal(t, 3, asha.LookbackLeads)
	assert.Equal(t, 1, asha.TodaysDeals)
	assert.Equal(t, 1, asha.ConvertedLeads)
	assert.InDelta(t, 33.3, asha.LeadToDealConversionPercent, 0.001)
	assert.Equal(t, 2, asha.TotalTasks)
	assert.Equal(t, 1, asha.CompletedTasks)
	assert.InDelta(t, 50, asha.TaskCompletionPercent, 0.001)
	assert.InDelta(t, 50, asha.RetentionPercent, 0.001)

	ravi := rows[1]
	assert.Equal(t, "Ravi", ravi.Owner)
	assert.Equal(t, 1, ravi.TodaysDeals)
	assert.Equal(t, 0, ravi.ConvertedLeads)
	assert.InDelta(t, 100, ravi.RetentionPercent, 0.001)
}

func TestBuildExcludesConfiguredOwners(t *testing.T) {
	clock := fixedClock(t)
	now := clock.Now()
	leads := []crm.Lead{
		{Owner: "Asha", CreatedAt: now},
		{Owner: "System Bot", CreatedAt: now},
	}

	rows := Build(leads, nil, nil, clock, 7, []string{" system bot "})
	require.Len(t, rows, 1)
	assert.Equal(t, "Asha", rows[0].Owner)
}

func TestBuildUnassignedOwnerBucket(t *testing.T) {
	clock := fixedClock(t)
	leads := []crm.Lead{{CreatedAt: clock.Now()}}

	rows := Build(leads, nil, nil, clock, 7, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, crm.UnassignedOwner, rows[0].Owner)
}

func TestBuildSortsByTodaysLeadsThenName(t *testing.T) {
	clock := fixedClock(t)
	now := clock.Now()
	leads := []crm.Lead{
		{Owner: "Zara", CreatedAt: now},
		{Owner: "Asha", CreatedAt: now},
		{Owner: "Ravi", CreatedAt: now},
		{Owner: "Ravi", CreatedAt: now},
	}

	rows := Build(leads, nil, nil, clock, 7, nil)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ravi", rows[0].Owner)
	assert.Equal(t, "Asha", rows[1].Owner)
	assert.Equal(t, "Zara", rows[2].Owner)
}
