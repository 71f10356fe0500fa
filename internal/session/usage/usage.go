// Package usage tracks cumulative token and cost totals for a session.
package usage

import (
	"math"
	"time"

	"github.com/agentdeck/agentdeck/internal/session/models"
)

// Delta is one turn's reported usage. Fields are added to the running
// totals, never substituted.
type Delta struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	CostUSD             float64
	// ContextWindow, when non-zero, refreshes the accumulator's view of
	// the model's context window.
	ContextWindow int64
	Model         string
}

// Accumulator holds the running usage totals for one session. It is not
// internally synchronized; the session's stream task owns it.
type Accumulator struct {
	inputTokens         int64
	outputTokens        int64
	cacheReadTokens     int64
	cacheCreationTokens int64
	costUSD             float64
	contextWindow       int64
	model               string
}

// New creates an accumulator with the given initial context window.
func New(contextWindow int64) *Accumulator {
	return &Accumulator{contextWindow: contextWindow}
}

// Add folds one turn's delta into the running totals.
func (a *Accumulator) Add(d Delta) {
	a.inputTokens += d.InputTokens
	a.outputTokens += d.OutputTokens
	a.cacheReadTokens += d.CacheReadTokens
	a.cacheCreationTokens += d.CacheCreationTokens
	a.costUSD += d.CostUSD
	if d.ContextWindow > 0 {
		a.contextWindow = d.ContextWindow
	}
	if d.Model != "" {
		a.model = d.Model
	}
}

// TotalTokens returns input + cache-read + cache-creation + output.
func (a *Accumulator) TotalTokens() int64 {
	return a.inputTokens + a.cacheReadTokens + a.cacheCreationTokens + a.outputTokens
}

// ContextWindow returns the current context window size.
func (a *Accumulator) ContextWindow() int64 {
	return a.contextWindow
}

// UsedPercent returns round(total / contextWindow * 100), clamped to
// [0, 100]. Zero when the context window is unknown.
func (a *Accumulator) UsedPercent() int {
	if a.contextWindow <= 0 {
		return 0
	}
	pct := int(math.Round(float64(a.TotalTokens()) / float64(a.contextWindow) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// RemainingPercent returns 100 - UsedPercent.
func (a *Accumulator) RemainingPercent() int {
	return 100 - a.UsedPercent()
}

// Snapshot returns the persistable usage row for the given session.
func (a *Accumulator) Snapshot(sessionID string) models.TokenUsage {
	return models.TokenUsage{
		SessionID:           sessionID,
		InputTokens:         a.inputTokens,
		OutputTokens:        a.outputTokens,
		CacheReadTokens:     a.cacheReadTokens,
		CacheCreationTokens: a.cacheCreationTokens,
		TotalCostUSD:        a.costUSD,
		ContextWindow:       a.contextWindow,
		Model:               a.model,
		UpdatedAt:           time.Now().UTC(),
	}
}
