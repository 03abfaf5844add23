package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCycle(cycle int, startedAt time.Time) CycleRecord {
	return CycleRecord{
		Cycle:           cycle,
		FlowID:          "monitor-cycle-1-1756555200",
		StartedAt:       startedAt,
		DurationMS:      42_000,
		Status:          "completed",
		InputTokens:     30_000,
		OutputTokens:    1500,
		Cost:            0.0094,
		Anomalies:       1,
		Warnings:        2,
		Recommendations: 3,
	}
}

func TestRecordAndReadCycle(t *testing.T) {
	s := openTestStore(t)

	rec := sampleCycle(1, time.Now().UTC())
	require.NoError(t, s.RecordCycle(rec))

	cycles, err := s.RecentCycles(0)
	require.NoError(t, err)
	require.Len(t, cycles, 1)

	got := cycles[0]
	assert.Equal(t, 1, got.Cycle)
	assert.Equal(t, rec.FlowID, got.FlowID)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 30_000, got.InputTokens)
	assert.Equal(t, 1, got.Anomalies)
	assert.Equal(t, 2, got.Warnings)
	assert.Equal(t, 3, got.Recommendations)
}

func TestRecentCyclesNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.RecordCycle(sampleCycle(i, base.Add(time.Duration(i)*time.Minute))))
	}

	cycles, err := s.RecentCycles(3)
	require.NoError(t, err)
	require.Len(t, cycles, 3)
	assert.Equal(t, 5, cycles[0].Cycle)
	assert.Equal(t, 3, cycles[2].Cycle)
}

func TestCycleWithoutInsights(t *testing.T) {
	s := openTestStore(t)

	rec := sampleCycle(1, time.Now().UTC())
	rec.Anomalies, rec.Warnings, rec.Recommendations = 0, 0, 0
	require.NoError(t, s.RecordCycle(rec))

	cycles, err := s.RecentCycles(0)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Zero(t, cycles[0].Anomalies)
	assert.Zero(t, cycles[0].Warnings)
	assert.Zero(t, cycles[0].Recommendations)
}

func TestInsightTotals(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.RecordCycle(sampleCycle(1, now)))
	require.NoError(t, s.RecordCycle(sampleCycle(2, now.Add(time.Minute))))

	totals, err := s.InsightTotals()
	require.NoError(t, err)
	assert.Equal(t, 2, totals["anomaly"])
	assert.Equal(t, 4, totals["warning"])
	assert.Equal(t, 6, totals["recommendation"])
}

func TestInsightTotalsEmpty(t *testing.T) {
	s := openTestStore(t)

	totals, err := s.InsightTotals()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"anomaly": 0, "warning": 0, "recommendation": 0}, totals)
}

func TestTotalCost(t *testing.T) {
	s := openTestStore(t)

	cost, err := s.TotalCost()
	require.NoError(t, err)
	assert.Zero(t, cost)

	now := time.Now().UTC()
	require.NoError(t, s.RecordCycle(sampleCycle(1, now)))
	require.NoError(t, s.RecordCycle(sampleCycle(2, now.Add(time.Minute))))

	cost, err = s.TotalCost()
	require.NoError(t, err)
	assert.InDelta(t, 0.0188, cost, 1e-9)
}
