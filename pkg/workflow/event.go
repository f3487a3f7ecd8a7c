package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the type of a coordination event.
type Kind string

const (
	KindIssueCreated  Kind = "issue_created"
	KindIssueUpdated  Kind = "issue_updated"
	KindIssueClosed   Kind = "issue_closed"
	KindIssueReopened Kind = "issue_reopened"
	KindCommentAdded  Kind = "comment_added"
	KindLabelChanged  Kind = "label_changed"
	KindStatusChanged Kind = "status_changed"
	KindAgentStarted  Kind = "agent_started"
	KindAgentStopped  Kind = "agent_stopped"
	KindAgentError    Kind = "agent_error"
	KindCodeGenerated Kind = "code_generated"
	KindCodeCommitted Kind = "code_committed"
	KindCodeReviewed  Kind = "code_reviewed"
	KindQAPassed      Kind = "qa_passed"
	KindQAFailed      Kind = "qa_failed"
)

// ErrMalformedEvent is returned by UnmarshalEvent when the wire payload is
// not a valid event record: broken framing, a missing event_type field, or
// an event_type outside the closed enumeration.
var ErrMalformedEvent = errors.New("malformed event")

// Validate checks that the Kind is a member of the closed enumeration.
func (k Kind) Validate() error {
	switch k {
	case KindIssueCreated, KindIssueUpdated, KindIssueClosed, KindIssueReopened,
		KindCommentAdded, KindLabelChanged, KindStatusChanged,
		KindAgentStarted, KindAgentStopped, KindAgentError,
		KindCodeGenerated, KindCodeCommitted, KindCodeReviewed,
		KindQAPassed, KindQAFailed:
		return nil
	default:
		return fmt.Errorf("unknown event kind: %q", k)
	}
}

// Event is an immutable coordination message exchanged between agents on the
// bus. Events are created when a role completes a unit of work and are never
// mutated afterwards. They carry no durable workflow state - the tracker's
// labels do - so a lost event is a monitoring gap, never a correctness
// failure.
//
// The JSON field names are the wire format and must not change. Payload
// values round-trip with ordinary JSON semantics (numbers decode as
// float64). IssueNumber zero means "no subject item" and is omitted on the
// wire.
type Event struct {
	Kind        Kind           `json:"event_type"`
	Agent       string         `json:"agent_name"`
	Timestamp   string         `json:"timestamp"`
	IssueNumber int            `json:"issue_number,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewEvent creates an event stamped with the current UTC time in ISO-8601
// form. A zero issue number means the event has no subject item.
func NewEvent(kind Kind, agent string, issueNumber int, payload map[string]any) *Event {
	return &Event{
		Kind:        kind,
		Agent:       agent,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		IssueNumber: issueNumber,
		Payload:     payload,
	}
}

// MarshalEvent serializes an event to its JSON wire form.
func MarshalEvent(e *Event) ([]byte, error) {
	if err := e.Kind.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// UnmarshalEvent deserializes an event from its JSON wire form. Returns
// ErrMalformedEvent (wrapped) when framing is broken or the event_type field
// is absent or not in the closed enumeration.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.Kind == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrMalformedEvent)
	}
	if err := e.Kind.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &e, nil
}
