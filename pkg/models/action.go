package models

import "strings"

// ActionKind tags the type of a report action. Only ADDCOMMENT carries
// semantics in this engine; other kinds are stored and mirrored opaquely.
type ActionKind string

const (
	KindAddComment ActionKind = "ADDCOMMENT"
)

// PendingAction marks an action as a local optimistic write not yet
// confirmed by the store.
type PendingAction string

const (
	PendingAdd    PendingAction = "add"
	PendingUpdate PendingAction = "update"
	PendingDelete PendingAction = "delete"
)

// MessagePart is one fragment of an action's message body. HTML may be
// empty; an empty first part on an ADDCOMMENT marks the comment deleted.
type MessagePart struct {
	Type string `json:"type,omitempty"`
	HTML string `json:"html"`
	Text string `json:"text,omitempty"`
}

// ReportAction is one entry in a report's ordered action log.
//
// Committed sequence numbers start at 1 and are unique and strictly
// increasing within a report; zero means the store has not assigned one
// yet. Loading placeholders are excluded from sequence bookkeeping.
type ReportAction struct {
	SequenceNumber int64          `json:"sequence_number,omitempty"`
	Kind           ActionKind     `json:"action_kind"`
	Message        []MessagePart  `json:"message,omitempty"`
	Pending        PendingAction  `json:"pending_action,omitempty"`
	Errors         map[string]any `json:"errors,omitempty"`
	IsLoading      bool           `json:"is_loading,omitempty"`
	Author         string         `json:"author,omitempty"`
	TS             int64          `json:"ts,omitempty"`
}

// FirstHTML returns the html of the first message part, or "" when the
// message is empty.
func (a ReportAction) FirstHTML() string {
	if len(a.Message) == 0 {
		return ""
	}
	return a.Message[0].HTML
}

// IsDeleted reports whether the action is a soft-deleted comment. Deletion
// is tombstone-by-emptiness: an ADDCOMMENT with no message parts or a
// blank first-part html, not a separate flag.
func IsDeleted(a ReportAction) bool {
	return a.Kind == KindAddComment && strings.TrimSpace(a.FirstHTML()) == ""
}
