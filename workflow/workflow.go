// Package workflow defines the static, versioned task graphs that drive
// message transformation, and the engine that executes them against a
// message until no task precondition fires.
package workflow

import (
	"github.com/payflowio/payflow/message"
)

// Status is the lifecycle state of a workflow definition.
type Status string

const (
	StatusDraft      Status = "Draft"
	StatusActive     Status = "Active"
	StatusDeprecated Status = "Deprecated"
)

// FunctionType selects the task implementation. Validate and Publish
// are declared in stored definitions but reserved: selecting one fails
// the task.
type FunctionType string

const (
	FunctionParse    FunctionType = "Parse"
	FunctionValidate FunctionType = "Validate"
	FunctionFetch    FunctionType = "Fetch"
	FunctionEnrich   FunctionType = "Enrich"
	FunctionPublish  FunctionType = "Publish"
)

// Task is one unit of work in a workflow. Its precondition fields
// (MessageStatus, PrevTask, PrevStatusCode, Condition) gate when it
// fires against a message's progress.
type Task struct {
	ID             string             `json:"task_id"`
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	MessageStatus  message.Status     `json:"message_status"`
	PrevTask       string             `json:"prev_task"`
	PrevStatusCode message.StatusCode `json:"prev_status_code,omitempty"`
	Condition      any                `json:"condition"`
	Function       FunctionType       `json:"function"`
	Input          any                `json:"input"`
}

// Workflow is a static task graph gated by tenant, origin and a
// metadata condition. Definitions are shared-immutable for the process
// lifetime once loaded.
type Workflow struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Version           uint16 `json:"version"`
	Tenant            string `json:"tenant"`
	Origin            string `json:"origin"`
	Status            Status `json:"status"`
	Condition         any    `json:"condition"`
	Tasks             []Task `json:"tasks"`
	InputTopic        string `json:"input_topic"`
	PersistOnComplete bool   `json:"persist_on_complete"`
}

// Matches is the outer routing filter used by the worker runtime:
// tenant/origin equality plus the workflow condition over the message
// metadata.
func (w *Workflow) Matches(m *message.Message) bool {
	return m.MatchesWorkflow(w.Tenant, w.Origin, w.Condition)
}
