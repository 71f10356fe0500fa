package permission

import (
	"time"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/session/models"
)

// AuditEntry captures one permission decision for the audit trail.
type AuditEntry struct {
	Tool           string
	Input          map[string]interface{}
	Behavior       Behavior
	Reason         Reason
	MatchedPattern string
	Mode           models.Mode
	Latency        time.Duration
}

// Auditor records permission decisions. The engine calls Record once
// per decision; implementations must not block.
type Auditor interface {
	Record(entry AuditEntry)
}

// NopAuditor discards all entries.
type NopAuditor struct{}

func (NopAuditor) Record(AuditEntry) {}

// LogAuditor writes decisions to the structured log.
type LogAuditor struct {
	logger *logger.Logger
}

// NewLogAuditor creates an auditor backed by the given logger.
func NewLogAuditor(log *logger.Logger) *LogAuditor {
	return &LogAuditor{logger: log}
}

func (a *LogAuditor) Record(entry AuditEntry) {
	a.logger.Info("permission decision",
		zap.String("tool", entry.Tool),
		zap.Any("input", entry.Input),
		zap.String("behavior", string(entry.Behavior)),
		zap.String("reason", string(entry.Reason)),
		zap.String("matched_pattern", entry.MatchedPattern),
		zap.String("mode", string(entry.Mode)),
		zap.Duration("latency", entry.Latency))
}
