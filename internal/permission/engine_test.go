package permission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/session/models"
)

type captureAuditor struct {
	entries []AuditEntry
}

func (c *captureAuditor) Record(entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func newTestEngine(t *testing.T, auditor Auditor) *Engine {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return NewEngine(log, auditor)
}

func rulesOf(allow, deny []string) Rules {
	return Rules{Allow: ParsePatterns(allow), Deny: ParsePatterns(deny)}
}

func TestEngine_DenyBeatsAllow(t *testing.T) {
	e := newTestEngine(t, nil)

	d := e.Decide(Request{
		Tool:  "Bash",
		Input: bashInput("rm -rf build"),
		Mode:  models.ModeDanger,
		Rules: rulesOf([]string{"Bash(rm -rf build)"}, []string{"Bash(rm:*)"}),
	})
	assert.Equal(t, BehaviorDeny, d.Behavior)
	assert.Equal(t, ReasonPattern, d.Reason)
	assert.Equal(t, "Bash(rm:*)", d.MatchedPattern)
}

func TestEngine_AllowPattern(t *testing.T) {
	e := newTestEngine(t, nil)

	d := e.Decide(Request{
		Tool:  "Bash",
		Input: bashInput("npm run build"),
		Mode:  models.ModePlanning,
		Rules: rulesOf([]string{"Bash(npm run:*)"}, nil),
	})
	assert.Equal(t, BehaviorAllow, d.Behavior)
	assert.Equal(t, ReasonPattern, d.Reason)
	assert.Equal(t, "Bash(npm run:*)", d.MatchedPattern)
}

func TestEngine_ModeFallbacks(t *testing.T) {
	e := newTestEngine(t, nil)
	unmatched := Request{Tool: "Bash", Input: bashInput("terraform apply")}

	planning := unmatched
	planning.Mode = models.ModePlanning
	d := e.Decide(planning)
	assert.Equal(t, BehaviorAsk, d.Behavior)
	assert.Equal(t, ReasonMode, d.Reason)

	danger := unmatched
	danger.Mode = models.ModeDanger
	d = e.Decide(danger)
	assert.Equal(t, BehaviorAllow, d.Behavior)
	assert.Equal(t, ReasonMode, d.Reason)
}

func TestEngine_AutoAcceptSafeList(t *testing.T) {
	e := newTestEngine(t, nil)

	// Read-only tool is allowed without asking.
	d := e.Decide(Request{
		Tool:  "Read",
		Input: fileInput("src/main.go"),
		Mode:  models.ModeAutoAccept,
	})
	assert.Equal(t, BehaviorAllow, d.Behavior)
	assert.Equal(t, ReasonMode, d.Reason)

	// Informational shell command likewise.
	d = e.Decide(Request{
		Tool:  "Bash",
		Input: bashInput("git status --porcelain"),
		Mode:  models.ModeAutoAccept,
	})
	assert.Equal(t, BehaviorAllow, d.Behavior)

	// A destructive command off the safe list asks.
	d = e.Decide(Request{
		Tool:  "Bash",
		Input: bashInput("rm -rf /"),
		Mode:  models.ModeAutoAccept,
	})
	assert.Equal(t, BehaviorAsk, d.Behavior)
	assert.Equal(t, ReasonMode, d.Reason)

	// Write tools are not on the safe list.
	d = e.Decide(Request{
		Tool:  "Edit",
		Input: fileInput("main.go"),
		Mode:  models.ModeAutoAccept,
	})
	assert.Equal(t, BehaviorAsk, d.Behavior)
}

func TestEngine_AlwaysAskTools(t *testing.T) {
	e := newTestEngine(t, nil)

	for _, tool := range []string{"ExitPlanMode", "AskUserQuestion"} {
		d := e.Decide(Request{
			Tool: tool,
			Mode: models.ModeDanger,
			// Even a matching allow rule must not bypass the round-trip.
			Rules: rulesOf([]string{tool}, nil),
		})
		assert.Equal(t, BehaviorAsk, d.Behavior, "tool %s", tool)
		assert.Equal(t, ReasonUser, d.Reason, "tool %s", tool)
	}
}

func TestEngine_GitCommitInterception(t *testing.T) {
	e := newTestEngine(t, nil)

	for _, command := range []string{
		"git commit -m 'fix'",
		"git --no-pager commit",
	} {
		d := e.Decide(Request{
			Tool:  "Bash",
			Input: bashInput(command),
			Mode:  models.ModeDanger,
			Rules: rulesOf([]string{"Bash(git:*)"}, nil),
		})
		assert.Equal(t, BehaviorDeny, d.Behavior, "command %q", command)
		assert.Equal(t, CommitDeniedMessage, d.Message, "command %q", command)
	}

	// Other git subcommands pass through to normal evaluation.
	d := e.Decide(Request{
		Tool:  "Bash",
		Input: bashInput("git push origin main"),
		Mode:  models.ModeDanger,
	})
	assert.Equal(t, BehaviorAllow, d.Behavior)
}

func TestEngine_InvalidModeFailsClosed(t *testing.T) {
	e := newTestEngine(t, nil)

	d := e.Decide(Request{
		Tool:  "Read",
		Input: fileInput("main.go"),
		Mode:  models.Mode("yolo"),
		Rules: rulesOf([]string{"Read"}, nil),
	})
	assert.Equal(t, BehaviorDeny, d.Behavior)
}

func TestEngine_Audit(t *testing.T) {
	auditor := &captureAuditor{}
	e := newTestEngine(t, auditor)

	e.Decide(Request{
		Tool:  "Bash",
		Input: bashInput("git status"),
		Mode:  models.ModeAutoAccept,
	})
	e.Decide(Request{
		Tool:  "Bash",
		Input: bashInput("rm -rf /"),
		Mode:  models.ModePlanning,
		Rules: rulesOf(nil, []string{"Bash(rm:*)"}),
	})

	require.Len(t, auditor.entries, 2)
	assert.Equal(t, BehaviorAllow, auditor.entries[0].Behavior)
	assert.Equal(t, models.ModeAutoAccept, auditor.entries[0].Mode)
	assert.Equal(t, BehaviorDeny, auditor.entries[1].Behavior)
	assert.Equal(t, "Bash(rm:*)", auditor.entries[1].MatchedPattern)
	assert.GreaterOrEqual(t, auditor.entries[1].Latency, time.Duration(0))
}
