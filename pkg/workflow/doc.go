// Package workflow defines the coordination core shared by every Warren
// agent: the status state machine and the event schema.
//
// # Status model
//
// A work item's stage is encoded as exactly one status label on the item in
// the external tracker. There is no internal store - the label set IS the
// database. StatusFromLabels is a pure function from a label set to a
// Status; it defaults to StatusNew and resolves the multiple-label race
// deterministically by enumeration order.
//
// Status changes go through ApplyStatus, which validates the transition
// against the fixed table before touching the tracker and rewrites labels
// in remove-old-then-add-new order. The worst a crash can do is leave an
// item with no status label, which simply reads as StatusNew on the next
// poll. An item can never end up with two status labels after a completed
// ApplyStatus, successful or not.
//
// # Events
//
// Events are immutable JSON records published on the bus when a role
// completes a unit of work. The wire format is fixed: event_type,
// agent_name, timestamp, issue_number, payload. Delivery is best-effort
// at-least-once; all durable state lives in tracker labels, so consumers
// must treat events as notifications, not as a source of truth.
//
// # Usage
//
//	status := workflow.StatusFromLabels(item.Labels)
//	if status == workflow.StatusReadyForDev {
//		err := workflow.ApplyStatus(ctx, trk, item.Number, workflow.StatusInProgress)
//		...
//	}
package workflow
