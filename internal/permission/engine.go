// Package permission implements the tool permission decision engine:
// pattern parsing and matching, settings merging, and the mode-governed
// allow/deny/ask policy.
package permission

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/session/models"
)

// Behavior is the outcome of a permission decision.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
	BehaviorAsk   Behavior = "ask"
)

// Reason identifies what produced a decision.
type Reason string

const (
	// ReasonPattern means an allow or deny rule matched.
	ReasonPattern Reason = "pattern"
	// ReasonMode means the session mode's fallback applied.
	ReasonMode Reason = "mode"
	// ReasonUser means a human round-trip is required.
	ReasonUser Reason = "user"
)

// Decision is the engine's verdict on one tool invocation.
type Decision struct {
	Behavior       Behavior
	Reason         Reason
	MatchedPattern string
	// Message carries user-facing guidance on denials.
	Message string
}

// Request describes one tool invocation to decide on.
type Request struct {
	Tool  string
	Input map[string]interface{}
	Mode  models.Mode
	Rules Rules
}

// alwaysAskTools require a human round-trip regardless of mode or
// matching patterns. Auto-resolving them would answer on the user's
// behalf.
var alwaysAskTools = map[string]bool{
	"ExitPlanMode":    true,
	"AskUserQuestion": true,
}

// safeTools are auto-allowed in auto-accept mode: read-only file
// operations and search/web tools.
var safeTools = map[string]bool{
	"Read":         true,
	"Glob":         true,
	"Grep":         true,
	"NotebookRead": true,
	"WebFetch":     true,
	"WebSearch":    true,
	"TodoWrite":    true,
}

// safeCommandPrefixes are informational shell commands auto-allowed in
// auto-accept mode.
var safeCommandPrefixes = []string{
	"ls", "pwd", "echo", "cat", "head", "tail", "wc",
	"which", "whoami", "date", "env",
	"git status", "git log", "git diff", "git branch", "git show",
}

// CommitDeniedMessage is returned when a raw git commit invocation is
// intercepted.
const CommitDeniedMessage = "raw git commit is not permitted; use the commit approval flow instead"

// Engine makes tool permission decisions. Decide is pure with respect
// to session state; every decision is handed to the audit recorder.
type Engine struct {
	logger  *logger.Logger
	auditor Auditor
}

// NewEngine creates an engine. A nil auditor disables auditing.
func NewEngine(log *logger.Logger, auditor Auditor) *Engine {
	if auditor == nil {
		auditor = NopAuditor{}
	}
	return &Engine{logger: log, auditor: auditor}
}

// Decide evaluates one tool invocation against the request's mode and
// rules in fixed precedence: always-ask tools, commit interception,
// deny rules, allow rules, then the mode fallback.
func (e *Engine) Decide(req Request) Decision {
	started := time.Now()
	decision := e.decide(req)
	e.auditor.Record(AuditEntry{
		Tool:           req.Tool,
		Input:          req.Input,
		Behavior:       decision.Behavior,
		Reason:         decision.Reason,
		MatchedPattern: decision.MatchedPattern,
		Mode:           req.Mode,
		Latency:        time.Since(started),
	})
	return decision
}

func (e *Engine) decide(req Request) Decision {
	if !req.Mode.Valid() {
		e.logger.Warn("invalid session mode, denying tool use",
			zap.String("mode", string(req.Mode)),
			zap.String("tool", req.Tool))
		return Decision{
			Behavior: BehaviorDeny,
			Reason:   ReasonMode,
			Message:  "invalid session mode",
		}
	}

	if alwaysAskTools[req.Tool] {
		return Decision{Behavior: BehaviorAsk, Reason: ReasonUser}
	}

	if commandTools[req.Tool] && isGitCommit(PrimaryArgument(req.Tool, req.Input)) {
		return Decision{
			Behavior:       BehaviorDeny,
			Reason:         ReasonPattern,
			MatchedPattern: "Bash(git commit:*)",
			Message:        CommitDeniedMessage,
		}
	}

	if p := FirstMatch(req.Rules.Deny, req.Tool, req.Input); p != nil {
		return Decision{Behavior: BehaviorDeny, Reason: ReasonPattern, MatchedPattern: p.Raw}
	}
	if p := FirstMatch(req.Rules.Allow, req.Tool, req.Input); p != nil {
		return Decision{Behavior: BehaviorAllow, Reason: ReasonPattern, MatchedPattern: p.Raw}
	}

	switch req.Mode {
	case models.ModeDanger:
		return Decision{Behavior: BehaviorAllow, Reason: ReasonMode}
	case models.ModeAutoAccept:
		if isSafe(req.Tool, req.Input) {
			return Decision{Behavior: BehaviorAllow, Reason: ReasonMode}
		}
		return Decision{Behavior: BehaviorAsk, Reason: ReasonMode}
	default: // planning
		return Decision{Behavior: BehaviorAsk, Reason: ReasonMode}
	}
}

// isSafe reports whether the invocation is on the built-in low-risk
// allowlist used by auto-accept mode.
func isSafe(tool string, input map[string]interface{}) bool {
	if safeTools[tool] {
		return true
	}
	if !commandTools[tool] {
		return false
	}
	command := strings.TrimSpace(PrimaryArgument(tool, input))
	for _, prefix := range safeCommandPrefixes {
		if command == prefix || strings.HasPrefix(command, prefix+" ") {
			return true
		}
	}
	return false
}

// isGitCommit reports whether a shell command is a raw git commit
// invocation. Flags between "git" and the subcommand are skipped.
func isGitCommit(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "git" {
		return false
	}
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "-") {
			continue
		}
		return f == "commit"
	}
	return false
}
