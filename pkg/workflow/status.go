package workflow

import (
	"context"
	"errors"
	"fmt"
)

// Status represents the workflow stage of a work item. The stage is never
// stored anywhere by Warren itself - it is derived on every read from the
// status label carried by the item in the external tracker.
type Status string

const (
	// StatusNew is the default stage for items carrying no recognized status label
	StatusNew Status = "new"

	// StatusWaitingForClarification indicates open questions block the requirements analysis
	StatusWaitingForClarification Status = "waiting_for_clarification"

	// StatusReadyForDev indicates requirements are clear and code generation can begin
	StatusReadyForDev Status = "ready_for_dev"

	// StatusInProgress indicates a development role is working the item
	StatusInProgress Status = "in_progress"

	// StatusReadyForQA indicates generated code is awaiting review
	StatusReadyForQA Status = "ready_for_qa"

	// StatusDone indicates QA passed and the item is complete
	StatusDone Status = "done"

	// StatusBlocked indicates development is stalled and needs intervention
	StatusBlocked Status = "blocked"
)

// statusOrder fixes the enumeration order. StatusFromLabels resolves
// conflicting labels by returning the first match in this order, which makes
// the multi-label anomaly deterministic and testable.
var statusOrder = []Status{
	StatusNew,
	StatusWaitingForClarification,
	StatusReadyForDev,
	StatusInProgress,
	StatusReadyForQA,
	StatusDone,
	StatusBlocked,
}

// statusLabels maps each status to its tracker label. The mapping is
// bijective - no two statuses share a label.
var statusLabels = map[Status]string{
	StatusNew:                     "needs-analysis",
	StatusWaitingForClarification: "waiting_for_clarification",
	StatusReadyForDev:             "ready_for_dev",
	StatusInProgress:              "in_progress",
	StatusReadyForQA:              "ready_for_qa",
	StatusDone:                    "done",
	StatusBlocked:                 "blocked",
}

// transitions is the legal transition table. A transition not present here
// must be rejected before any external mutation occurs.
var transitions = map[Status][]Status{
	StatusNew:                     {StatusWaitingForClarification, StatusReadyForDev},
	StatusWaitingForClarification: {StatusReadyForDev},
	StatusReadyForDev:             {StatusInProgress},
	StatusInProgress:              {StatusReadyForQA, StatusBlocked},
	StatusBlocked:                 {StatusInProgress},
	StatusReadyForQA:              {StatusDone, StatusInProgress},
}

var (
	// ErrUnknownStatus is returned for values outside the Status enumeration.
	// Hitting it indicates a programmer error, not a runtime condition.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrIllegalTransition is returned when a requested status change is not
	// in the transition table. No external state has been mutated when this
	// error is returned.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// Validate checks that the Status is a member of the closed enumeration.
func (s Status) Validate() error {
	if _, ok := statusLabels[s]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return nil
}

// LabelFor returns the tracker label encoding the given status.
func LabelFor(s Status) (string, error) {
	label, ok := statusLabels[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return label, nil
}

// StatusFromLabels derives the status from an item's label set. It is total:
// when no recognized status label is present it returns StatusNew. When more
// than one recognized label is present (a race left the item inconsistent)
// it returns the first match in enumeration order - a recoverable anomaly,
// not an error.
func StatusFromLabels(labels []string) Status {
	present := make(map[string]bool, len(labels))
	for _, label := range labels {
		present[label] = true
	}
	for _, s := range statusOrder {
		if present[statusLabels[s]] {
			return s
		}
	}
	return StatusNew
}

// IsLegalTransition reports whether from -> to is in the transition table.
func IsLegalTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStatusLabels returns every label that encodes a status, in enumeration
// order. Used when scrubbing stale status labels off an item.
func AllStatusLabels() []string {
	labels := make([]string, 0, len(statusOrder))
	for _, s := range statusOrder {
		labels = append(labels, statusLabels[s])
	}
	return labels
}

// isStatusLabel reports whether the label encodes any status.
func isStatusLabel(label string) bool {
	for _, l := range statusLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Labeler is the minimal tracker surface ApplyStatus needs. The full tracker
// client satisfies it; tests use small fakes.
type Labeler interface {
	// ItemLabels returns the current labels on the item.
	ItemLabels(ctx context.Context, number int) ([]string, error)

	// AddLabels adds labels to the item.
	AddLabels(ctx context.Context, number int, labels []string) error

	// RemoveLabel removes one label. Returns false if the label was absent.
	RemoveLabel(ctx context.Context, number int, label string) (bool, error)
}

// ApplyStatus moves an item to the target status by rewriting its status
// label. The requested transition is validated against the current label
// state before anything is mutated; an illegal transition returns
// ErrIllegalTransition with the item untouched.
//
// Mutation order is remove-old-then-add-new: every recognized status label
// is removed first, then the target label is added. A crash between the two
// steps leaves the item with no status label (observed as StatusNew on the
// next poll) rather than with two conflicting labels. That transient window
// is an accepted part of the design.
func ApplyStatus(ctx context.Context, l Labeler, number int, target Status) error {
	targetLabel, err := LabelFor(target)
	if err != nil {
		return err
	}

	labels, err := l.ItemLabels(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to read labels for item #%d: %w", number, err)
	}

	current := StatusFromLabels(labels)
	if !IsLegalTransition(current, target) {
		return fmt.Errorf("%w: %s -> %s (item #%d)", ErrIllegalTransition, current, target, number)
	}

	for _, label := range labels {
		if !isStatusLabel(label) {
			continue
		}
		if _, err := l.RemoveLabel(ctx, number, label); err != nil {
			return fmt.Errorf("failed to remove status label %q from item #%d: %w", label, number, err)
		}
	}

	if err := l.AddLabels(ctx, number, []string{targetLabel}); err != nil {
		return fmt.Errorf("failed to add status label %q to item #%d: %w", targetLabel, number, err)
	}

	return nil
}
