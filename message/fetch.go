package message

import (
	"log/slog"
	"time"
)

// Fetch stages data as the rule-evaluation context for a subsequent
// Enrich. The staged value lives in ephemeral storage and is never
// serialised; the audit entry records that the task ran but carries no
// field changes.
func (m *Message) Fetch(data any, description, workflowID string, workflowVersion uint16, taskID string) error {
	start := time.Now()
	startTime := start.UTC()

	slog.Debug("Running fetch function",
		"workflow_id", workflowID,
		"task_id", taskID)

	m.ephemeral = data

	if description == "" {
		description = "Fetch applied"
	}
	audit := NewAuditLog(workflowID, workflowVersion, taskID, startTime, description, nil)
	m.Audit = append(m.Audit, audit)
	m.Version++

	slog.Debug("Fetch function completed",
		"workflow_id", workflowID,
		"task_id", taskID,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
