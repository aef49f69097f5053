package message

import (
	"fmt"
	"time"

	"github.com/payflowio/payflow/rule"
)

// EnrichmentRule assigns the result of a logic rule to a field in the
// message data.
type EnrichmentRule struct {
	Field       string `json:"field"`
	Logic       any    `json:"logic"`
	Description string `json:"description,omitempty"`
}

// Enrich applies rules in order inside a single transaction. Each rule
// is evaluated against data (the external context, typically staged by a
// preceding Fetch), never against the message's own Data: later rules
// see earlier writes in Data but the evaluation context is fixed for the
// whole task. Any evaluation or update failure rolls back every write
// and appends no audit entry.
func (m *Message) Enrich(rules []EnrichmentRule, data any, description, workflowID string, workflowVersion uint16, taskID string) error {
	startTime := time.Now().UTC()
	changes := make([]ChangeLog, 0, len(rules))

	m.beginTransaction(workflowID, taskID)

	for _, r := range rules {
		value, err := rule.Apply(r.Logic, data)
		if err != nil {
			m.rollbackTransaction()
			return newFunctionError("Enrichment", 400, fmt.Sprintf("rule application failed for field %s", r.Field), err)
		}

		if err := m.Update(r.Field, value); err != nil {
			m.rollbackTransaction()
			return err
		}

		reason := r.Description
		if reason == "" {
			reason = fmt.Sprintf("Enriched field %s", r.Field)
		}
		changes = append(changes, NewChangeLog(r.Field, reason, nil, value))
	}

	m.commitTransaction()

	if description == "" {
		description = "Enrichment applied"
	}
	audit := NewAuditLog(workflowID, workflowVersion, taskID, startTime, description, changes)
	m.Audit = append(m.Audit, audit)
	m.Version++
	return nil
}
