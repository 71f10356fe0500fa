// Package prompt brokers interactive requests that suspend an agent
// turn until a human responds: tool permissions, user questions, plan
// approvals, and commit approvals.
package prompt

import (
	"time"
)

// Kind identifies what a pending request is asking for.
type Kind string

const (
	KindPermission     Kind = "permission"
	KindUserQuestion   Kind = "user_question"
	KindPlanApproval   Kind = "plan_approval"
	KindCommitApproval Kind = "commit_approval"
)

// Request is one interactive request awaiting a human response. At
// most one request of a kind is pending per session.
type Request struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Kind      Kind                   `json:"kind"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Response resolves a pending request. A request is consumed by
// exactly one response.
type Response struct {
	RequestID string                 `json:"request_id"`
	Approved  bool                   `json:"approved"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	// Cancelled marks the forced default resolution applied when the
	// session stops before a human answers.
	Cancelled   bool      `json:"cancelled,omitempty"`
	RespondedAt time.Time `json:"responded_at"`
}
