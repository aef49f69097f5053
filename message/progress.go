package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the message's position in the workflow lifecycle.
type Status string

const (
	StatusReceived   Status = "Received"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// UnmarshalJSON accepts the canonical spelling and the legacy "Recieved"
// typo that older producers emitted. Marshal always writes the canonical
// form, so legacy messages are migrated on the next hop.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "Received", "Recieved":
		*s = StatusReceived
	case "Processing":
		*s = StatusProcessing
	case "Completed":
		*s = StatusCompleted
	case "Failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown message status %q", raw)
	}
	return nil
}

// StatusCode is the outcome of the previously executed task. The zero
// value means no task has reported an outcome.
type StatusCode string

const (
	CodeSuccess StatusCode = "Success"
	CodeFailure StatusCode = "Failure"
)

// Progress is the message's current position in a workflow's state
// machine. Task matching is a pure function of these fields plus the
// message metadata.
type Progress struct {
	Status         Status     `json:"status"`
	WorkflowID     string     `json:"workflow_id"`
	PrevTask       string     `json:"prev_task"`
	PrevStatusCode StatusCode `json:"prev_status_code,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
