package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/payflowio/payflow/message"
)

// Execute runs the workflow against the message until quiescent: in
// each pass the first task (in declaration order) whose precondition
// matches the message's progress executes, then the pass restarts. A
// pass with no matching task ends the workflow successfully.
//
// A task failure freezes the message (progress Failed/Failure) and
// returns a WorkflowError; the caller must not acknowledge the carrying
// record. The audit cap bounds runaway task graphs.
func Execute(m *message.Message, w *Workflow) error {
	for {
		if len(m.Audit) > message.MaxAuditEntries {
			return message.NewWorkflowError(w.ID, w.Version, 500, "audit log exceeded maximum size", message.ErrAuditOverflow)
		}

		task := nextTask(m, w)
		if task == nil {
			return nil
		}

		if err := executeTask(m, w, task); err != nil {
			m.Progress = message.Progress{
				Status:         message.StatusFailed,
				WorkflowID:     w.ID,
				PrevTask:       task.ID,
				PrevStatusCode: message.CodeFailure,
				Timestamp:      time.Now().UTC(),
			}
			return message.NewWorkflowError(w.ID, w.Version, 500, fmt.Sprintf("task %s failed", task.ID), err)
		}

		m.Progress = message.Progress{
			Status:         task.MessageStatus,
			WorkflowID:     w.ID,
			PrevTask:       task.ID,
			PrevStatusCode: message.CodeSuccess,
			Timestamp:      time.Now().UTC(),
		}
	}
}

// nextTask scans tasks in declaration order and returns the first whose
// precondition matches, or nil when the workflow is quiescent.
func nextTask(m *message.Message, w *Workflow) *Task {
	for i := range w.Tasks {
		t := &w.Tasks[i]
		if m.MatchesTask(t.MessageStatus, w.ID, t.PrevTask, t.PrevStatusCode, t.Condition) {
			return t
		}
	}
	return nil
}

func executeTask(m *message.Message, w *Workflow, t *Task) error {
	switch t.Function {
	case FunctionParse:
		return m.Parse(t.Description, w.ID, w.Version, t.ID)
	case FunctionEnrich:
		rules, err := decodeEnrichmentRules(t.Input)
		if err != nil {
			return err
		}
		return m.Enrich(rules, m.EphemeralData(), t.Description, w.ID, w.Version, t.ID)
	case FunctionFetch:
		return m.Fetch(t.Input, t.Description, w.ID, w.Version, t.ID)
	default:
		return &message.FunctionError{
			Function: "Execute",
			Code:     400,
			Reason:   fmt.Sprintf("function %s is reserved", t.Function),
			Err:      message.ErrUnsupportedFunction,
		}
	}
}

// decodeEnrichmentRules converts a task's input value (a decoded JSON
// array of {field, logic, description}) into typed rules.
func decodeEnrichmentRules(input any) ([]message.EnrichmentRule, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, &message.FunctionError{Function: "Execute", Code: 400, Reason: "encode enrichment input", Err: err}
	}
	var rules []message.EnrichmentRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, &message.FunctionError{Function: "Execute", Code: 400, Reason: "decode enrichment rules", Err: err}
	}
	return rules, nil
}
