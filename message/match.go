package message

import "github.com/payflowio/payflow/rule"

// MatchesWorkflow is the outer routing filter: the message's tenant and
// origin must equal the workflow's, and the workflow condition (nil
// means unconditional) must evaluate to true against the message
// metadata. Evaluation failures count as no match.
func (m *Message) MatchesWorkflow(tenant, origin string, condition any) bool {
	if m.Tenant != tenant || m.Origin != origin {
		return false
	}
	return conditionHolds(condition, m.Metadata)
}

// MatchesTask reports whether a task's precondition fires for the
// message's current progress. Pure: depends only on progress, metadata
// and the task fields.
func (m *Message) MatchesTask(status Status, workflowID, prevTask string, prevStatusCode StatusCode, condition any) bool {
	if workflowID != m.Progress.WorkflowID ||
		prevTask != m.Progress.PrevTask ||
		prevStatusCode != m.Progress.PrevStatusCode ||
		status != m.Progress.Status {
		return false
	}
	return conditionHolds(condition, m.Metadata)
}

func conditionHolds(condition, context any) bool {
	if condition == nil {
		return true
	}
	result, err := rule.Apply(condition, context)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}
