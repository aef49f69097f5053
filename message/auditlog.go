package message

import "time"

// AuditLog is the per-task record of what a task did to a message.
// Entries are append-only and never mutated after creation.
type AuditLog struct {
	ID              uint64      `json:"id"`
	StartTime       time.Time   `json:"start_time"`
	FinishTime      time.Time   `json:"finish_time"`
	Workflow        string      `json:"workflow"`
	WorkflowVersion uint16      `json:"workflow_version"`
	Task            string      `json:"task"`
	Description     string      `json:"description"`
	Hash            string      `json:"hash"`
	Service         string      `json:"service"`
	Instance        string      `json:"instance"`
	Changes         []ChangeLog `json:"changes"`
}

// ChangeLog records a single field-level change within a task.
type ChangeLog struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value,omitempty"`
	Reason   string `json:"reason"`
}

// NewAuditLog stamps a finished task record. Hash is left empty; it is
// reserved for a future signing layer.
func NewAuditLog(workflow string, workflowVersion uint16, task string, startTime time.Time, description string, changes []ChangeLog) AuditLog {
	service, instance := auditSource()
	return AuditLog{
		ID:              nextID(),
		StartTime:       startTime,
		FinishTime:      time.Now().UTC(),
		Workflow:        workflow,
		WorkflowVersion: workflowVersion,
		Task:            task,
		Description:     description,
		Hash:            "",
		Service:         service,
		Instance:        instance,
		Changes:         changes,
	}
}

// NewChangeLog records one field mutation with its reason.
func NewChangeLog(field, reason string, oldValue, newValue any) ChangeLog {
	return ChangeLog{
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		Reason:   reason,
	}
}
