// Package tracker defines the issue-tracker collaborator consumed by agent
// roles, plus the GitHub REST implementation. The tracker owns all durable
// workflow state: Warren only reads items and requests label and content
// mutations through this interface.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Item is a trackable unit of requested work. Identity, labels, and content
// are owned by the external tracker; Warren derives workflow status from the
// Labels set on every read and never caches it.
type Item struct {
	Number    int
	Title     string
	Body      string
	State     string
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time
	URL       string
}

// Comment is a discussion entry on an item.
type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

// ItemUpdate carries partial updates for UpdateItem. Nil fields are left
// untouched.
type ItemUpdate struct {
	Title *string
	Body  *string
	State *string
}

// PullRequest identifies an opened pull request.
type PullRequest struct {
	Number int
	URL    string
}

// APIError is a remote tracker failure that survived the retry budget.
// Callers branch on StatusCode where it matters (404 lookups).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker API error: status=%d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a tracker 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// Tracker is the issue-tracker surface consumed by agent roles. One real
// implementation exists (GitHub); tests use fakes.
type Tracker interface {
	// ListItems returns items in the given state carrying all of the given
	// labels.
	ListItems(ctx context.Context, state string, labels []string) ([]Item, error)

	// GetItem fetches a single item. Returns an IsNotFound error when the
	// item does not exist.
	GetItem(ctx context.Context, number int) (*Item, error)

	// ItemLabels returns the current labels on an item. Convenience for
	// workflow.ApplyStatus.
	ItemLabels(ctx context.Context, number int) ([]string, error)

	// AddLabels adds labels to an item.
	AddLabels(ctx context.Context, number int, labels []string) error

	// RemoveLabel removes one label. Returns false (no error) when the label
	// was not present.
	RemoveLabel(ctx context.Context, number int, label string) (bool, error)

	// AddComment posts a comment on an item.
	AddComment(ctx context.Context, number int, body string) error

	// ListComments returns all comments on an item, oldest first.
	ListComments(ctx context.Context, number int) ([]Comment, error)

	// UpdateItem applies a partial update to an item.
	UpdateItem(ctx context.Context, number int, update ItemUpdate) error

	// CreateBranch creates a branch from the head of fromBranch.
	CreateBranch(ctx context.Context, name, fromBranch string) error

	// BranchExists reports whether a branch exists.
	BranchExists(ctx context.Context, name string) (bool, error)

	// WriteFile creates or updates a file on a branch with a commit message.
	// previousSHA must be set when updating an existing file.
	WriteFile(ctx context.Context, path, content, message, branch, previousSHA string) error

	// ReadFile returns the decoded content of a file on a branch.
	ReadFile(ctx context.Context, path, branch string) (string, error)

	// OpenPullRequest opens a pull request from head into base.
	OpenPullRequest(ctx context.Context, title, body, head, base string) (*PullRequest, error)
}
