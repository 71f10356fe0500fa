package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator_Add(t *testing.T) {
	a := New(200000)

	a.Add(Delta{InputTokens: 100, OutputTokens: 50, CacheReadTokens: 10, CacheCreationTokens: 5, CostUSD: 0.01})
	a.Add(Delta{InputTokens: 200, OutputTokens: 25, CostUSD: 0.02})

	snap := a.Snapshot("s1")
	assert.Equal(t, int64(300), snap.InputTokens)
	assert.Equal(t, int64(75), snap.OutputTokens)
	assert.Equal(t, int64(10), snap.CacheReadTokens)
	assert.Equal(t, int64(5), snap.CacheCreationTokens)
	assert.InDelta(t, 0.03, snap.TotalCostUSD, 1e-9)
	assert.Equal(t, "s1", snap.SessionID)
}

func TestAccumulator_Associative(t *testing.T) {
	d1 := Delta{InputTokens: 1000, OutputTokens: 300, CacheReadTokens: 40, CacheCreationTokens: 7, CostUSD: 0.05}
	d2 := Delta{InputTokens: 2500, OutputTokens: 120, CacheReadTokens: 11, CacheCreationTokens: 3, CostUSD: 0.08}

	sequential := New(200000)
	sequential.Add(d1)
	sequential.Add(d2)

	combined := New(200000)
	combined.Add(Delta{
		InputTokens:         d1.InputTokens + d2.InputTokens,
		OutputTokens:        d1.OutputTokens + d2.OutputTokens,
		CacheReadTokens:     d1.CacheReadTokens + d2.CacheReadTokens,
		CacheCreationTokens: d1.CacheCreationTokens + d2.CacheCreationTokens,
		CostUSD:             d1.CostUSD + d2.CostUSD,
	})

	assert.Equal(t, combined.TotalTokens(), sequential.TotalTokens())
	s1, s2 := sequential.Snapshot("s"), combined.Snapshot("s")
	assert.Equal(t, s2.InputTokens, s1.InputTokens)
	assert.Equal(t, s2.OutputTokens, s1.OutputTokens)
	assert.Equal(t, s2.CacheReadTokens, s1.CacheReadTokens)
	assert.Equal(t, s2.CacheCreationTokens, s1.CacheCreationTokens)
	assert.InDelta(t, s2.TotalCostUSD, s1.TotalCostUSD, 1e-9)
}

func TestAccumulator_TotalTokens(t *testing.T) {
	a := New(200000)
	a.Add(Delta{InputTokens: 10, OutputTokens: 20, CacheReadTokens: 30, CacheCreationTokens: 40})
	assert.Equal(t, int64(100), a.TotalTokens())
}

func TestAccumulator_UsedPercent(t *testing.T) {
	a := New(1000)
	a.Add(Delta{InputTokens: 250})
	assert.Equal(t, 25, a.UsedPercent())
	assert.Equal(t, 75, a.RemainingPercent())

	// Rounds to nearest.
	a.Add(Delta{InputTokens: 246})
	assert.Equal(t, 50, a.UsedPercent())
}

func TestAccumulator_UsedPercentUnknownWindow(t *testing.T) {
	a := New(0)
	a.Add(Delta{InputTokens: 500})
	assert.Equal(t, 0, a.UsedPercent())
}

func TestAccumulator_UsedPercentClamped(t *testing.T) {
	a := New(100)
	a.Add(Delta{InputTokens: 100000})
	assert.Equal(t, 100, a.UsedPercent())
	assert.Equal(t, 0, a.RemainingPercent())
}

func TestAccumulator_ContextWindowRefresh(t *testing.T) {
	a := New(100000)
	a.Add(Delta{InputTokens: 10, ContextWindow: 200000, Model: "claude-sonnet-4-5"})
	assert.Equal(t, int64(200000), a.ContextWindow())

	// A delta without a window keeps the refreshed value.
	a.Add(Delta{InputTokens: 10})
	assert.Equal(t, int64(200000), a.ContextWindow())

	snap := a.Snapshot("s")
	assert.Equal(t, "claude-sonnet-4-5", snap.Model)
}
