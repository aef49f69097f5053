// Package message holds the aggregate root that traverses the pipeline:
// a payload plus its parsed data, routing metadata, workflow progress
// and a tamper-evident audit trail. Task functions (Parse, Enrich,
// Fetch) mutate the aggregate under an all-or-nothing transaction
// protocol; everything else reads it.
package message

import (
	"strings"
	"time"
	"unicode"
)

// MaxAuditEntries caps the audit trail per message. A workflow that
// pushes a message past this is looping and is failed fatally.
const MaxAuditEntries = 100

// Message is the aggregate root. It is owned by exactly one worker
// goroutine at a time; none of its methods are safe for concurrent use.
type Message struct {
	ID       uint64   `json:"id"`
	ParentID string   `json:"parent_id,omitempty"`
	Payload  Payload  `json:"payload"`
	Version  uint16   `json:"version"`
	Tenant   string   `json:"tenant"`
	Origin   string   `json:"origin"`
	Data     any      `json:"data"`
	Metadata any      `json:"metadata"`
	Progress Progress `json:"progress"`

	// Audit is append-only; entries are never mutated and its length
	// never decreases.
	Audit []AuditLog `json:"audit"`

	// ephemeral is staged by Fetch as the rule-evaluation context for a
	// subsequent Enrich. Never serialised.
	ephemeral any

	// tx is the in-flight undo log, non-nil only while a task's
	// mutation is open.
	tx *txLog
}

// New creates a message around a payload with a creation audit entry.
// alias names the business object for audit descriptions ("Payment");
// empty means plain "Message".
func New(payload Payload, tenant, origin, workflowID string, workflowVersion uint16, taskID, alias string) *Message {
	startTime := time.Now().UTC()
	if alias == "" {
		alias = "Message"
	}
	description := capitalize(alias) + " created"
	reason := "Initial message creation for " + strings.ToLower(alias)

	change := NewChangeLog("payload", reason, nil, nil)
	audit := NewAuditLog(workflowID, workflowVersion, taskID, startTime, description, []ChangeLog{change})

	return &Message{
		ID:      nextID(),
		Payload: payload,
		Version: 1,
		Tenant:  tenant,
		Origin:  origin,
		Progress: Progress{
			Status:         StatusReceived,
			WorkflowID:     workflowID,
			PrevTask:       taskID,
			PrevStatusCode: CodeSuccess,
			Timestamp:      time.Now().UTC(),
		},
		Audit: []AuditLog{audit},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// EphemeralData returns the value staged by the last Fetch, or nil.
func (m *Message) EphemeralData() any { return m.ephemeral }

// TransactionOpen reports whether a task mutation is in flight.
func (m *Message) TransactionOpen() bool { return m.tx != nil }

// ---------------------------------------------------------------------------
// Transaction protocol
// ---------------------------------------------------------------------------

// undoEntry is the inverse of one Update: the shallowest node the write
// created or replaced, so rollback restores it in a single assignment.
type undoEntry struct {
	path    []string
	old     any
	existed bool
}

type txLog struct {
	entries []undoEntry
}

// beginTransaction records the executing workflow and task in progress
// and opens an empty undo log.
func (m *Message) beginTransaction(workflowID, taskID string) {
	m.Progress.WorkflowID = workflowID
	m.Progress.PrevTask = taskID
	m.tx = &txLog{}
}

// commitTransaction marks the task successful and discards the undo log.
func (m *Message) commitTransaction() {
	m.Progress.PrevStatusCode = CodeSuccess
	m.Progress.Timestamp = time.Now().UTC()
	m.tx = nil
}

// rollbackTransaction drains the undo log in reverse, restoring each
// recorded node. The walk to a node's parent stops at the first
// non-object: a leaf whose parents no longer exist is not restored.
func (m *Message) rollbackTransaction() {
	if m.tx != nil {
		entries := m.tx.entries
		for i := len(entries) - 1; i >= 0; i-- {
			m.restore(entries[i])
		}
		m.tx = nil
	}
	m.Progress.PrevStatusCode = CodeFailure
	m.Progress.Timestamp = time.Now().UTC()
}

func (m *Message) restore(e undoEntry) {
	if len(e.path) == 1 {
		// The write replaced the data root itself.
		m.Data = e.old
		return
	}
	cur, ok := m.Data.(map[string]any)
	if !ok {
		return
	}
	for _, part := range e.path[1 : len(e.path)-1] {
		child, ok := cur[part].(map[string]any)
		if !ok {
			return
		}
		cur = child
	}
	leaf := e.path[len(e.path)-1]
	if e.existed {
		cur[leaf] = e.old
	} else {
		delete(cur, leaf)
	}
}

// Update assigns value at a dot-separated path which must start with the
// literal segment "data". Non-object intermediate nodes are replaced
// with fresh objects (auto-vivification). When a transaction is open the
// shallowest node each write creates or replaces is pushed onto the undo
// log first.
func (m *Message) Update(fieldPath string, value any) error {
	parts := strings.Split(fieldPath, ".")
	if parts[0] != "data" {
		return newFunctionError("Update", 400, "field path must start with 'data'", ErrInvalidFieldPath)
	}
	if len(parts) == 1 {
		return nil
	}

	cur, ok := m.Data.(map[string]any)
	if !ok {
		m.record(undoEntry{path: parts[:1], old: m.Data, existed: true})
		cur = map[string]any{}
		m.Data = cur
	}

	for i := 1; i < len(parts)-1; i++ {
		child, exists := cur[parts[i]]
		if obj, isObj := child.(map[string]any); isObj {
			cur = obj
			continue
		}
		m.record(undoEntry{path: parts[:i+1], old: child, existed: exists})
		obj := map[string]any{}
		cur[parts[i]] = obj
		cur = obj
	}

	leaf := parts[len(parts)-1]
	old, exists := cur[leaf]
	m.record(undoEntry{path: parts, old: old, existed: exists})
	cur[leaf] = value
	return nil
}

func (m *Message) record(e undoEntry) {
	if m.tx == nil {
		return
	}
	m.tx.entries = append(m.tx.entries, e)
}
