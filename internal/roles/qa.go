package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/warrenhq/warren/internal/tracker"
	"github.com/warrenhq/warren/pkg/workflow"
)

// QA reviews items whose implementation is awaiting verification. All checks
// run even after the first failure so the feedback comment names everything
// wrong at once.
//
// A pass opens the pull request before moving the item to done, so a done
// item always has its PR. A crash between the two steps can produce a
// duplicate PR on the retry; that is visible to humans and accepted.
type QA struct {
	name       string
	baseBranch string
	tracker    tracker.Tracker
	llm        Generator
	pub        Publisher
}

// NewQA creates the QA role.
func NewQA(name, baseBranch string, t tracker.Tracker, g Generator, p Publisher) *QA {
	return &QA{name: name, baseBranch: baseBranch, tracker: t, llm: g, pub: p}
}

func (q *QA) Name() string { return q.name }

func (q *QA) Ready() workflow.Status { return workflow.StatusReadyForQA }

type checkResult struct {
	name   string
	passed bool
	detail string
}

func (q *QA) Process(ctx context.Context, item *tracker.Item) error {
	fresh, ok, err := fetchInStatus(ctx, q.tracker, item.Number, workflow.StatusReadyForQA)
	if err != nil || !ok {
		return err
	}

	branch, err := q.findBranch(ctx, fresh.Number, fresh.Title)
	if err != nil {
		return fmt.Errorf("failed to check branches for item #%d: %w", fresh.Number, err)
	}

	checks := []checkResult{{
		name:   "implementation branch",
		passed: branch != "",
		detail: branchDetail(branch),
	}}

	if branch != "" {
		review, err := q.runVerdictCheck(ctx, "code review", q.reviewPrompt(fresh, branch))
		if err != nil {
			return err
		}
		coverage, err := q.runVerdictCheck(ctx, "requirements coverage", q.coveragePrompt(fresh))
		if err != nil {
			return err
		}
		checks = append(checks, review, coverage)
	}

	if allPassed(checks) {
		return q.pass(ctx, fresh, branch, checks)
	}
	return q.fail(ctx, fresh, checks)
}

// findBranch probes the known role prefixes for this item's implementation
// branch.
func (q *QA) findBranch(ctx context.Context, number int, title string) (string, error) {
	for _, prefix := range []string{"backend", "frontend"} {
		branch := BranchName(prefix, number, title)
		exists, err := q.tracker.BranchExists(ctx, branch)
		if err != nil {
			return "", err
		}
		if exists {
			return branch, nil
		}
	}
	return "", nil
}

func branchDetail(branch string) string {
	if branch == "" {
		return "no implementation branch found"
	}
	return branch
}

// runVerdictCheck asks the model for a VERDICT: PASS/FAIL answer. A provider
// failure aborts the cycle (the item stays ready_for_qa for retry) rather
// than counting as a failed check.
func (q *QA) runVerdictCheck(ctx context.Context, name, prompt string) (checkResult, error) {
	resp, err := q.llm.Generate(ctx, prompt)
	if err != nil {
		return checkResult{}, fmt.Errorf("%s check failed to run: %w", name, err)
	}
	return checkResult{
		name:   name,
		passed: verdictPassed(resp.Content),
		detail: strings.TrimSpace(resp.Content),
	}, nil
}

func verdictPassed(content string) bool {
	return strings.Contains(strings.ToUpper(content), "VERDICT: PASS")
}

func allPassed(checks []checkResult) bool {
	for _, c := range checks {
		if !c.passed {
			return false
		}
	}
	return true
}

func (q *QA) pass(ctx context.Context, item *tracker.Item, branch string, checks []checkResult) error {
	pr, err := q.tracker.OpenPullRequest(ctx,
		fmt.Sprintf("Issue #%d: %s", item.Number, item.Title),
		fmt.Sprintf("Closes #%d\n\n%s", item.Number, checkSummary(checks)),
		branch, q.baseBranch)
	if err != nil {
		return fmt.Errorf("failed to open pull request for item #%d: %w", item.Number, err)
	}

	comment := fmt.Sprintf("%s\n\nAll checks passed.\n\n%s\nPull request: %s",
		qaReviewHeader, checkSummary(checks), pr.URL)
	if err := q.tracker.AddComment(ctx, item.Number, comment); err != nil {
		return fmt.Errorf("failed to post QA results on item #%d: %w", item.Number, err)
	}

	if err := workflow.ApplyStatus(ctx, q.tracker, item.Number, workflow.StatusDone); err != nil {
		return err
	}

	q.pub.Publish(ctx, workflow.NewEvent(workflow.KindCodeReviewed, q.name, item.Number,
		map[string]any{"branch": branch}))
	q.pub.Publish(ctx, workflow.NewEvent(workflow.KindQAPassed, q.name, item.Number,
		map[string]any{"branch": branch, "pull_request": float64(pr.Number)}))
	publishStatusChanged(ctx, q.pub, q.name, item.Number, workflow.StatusReadyForQA, workflow.StatusDone)
	return nil
}

func (q *QA) fail(ctx context.Context, item *tracker.Item, checks []checkResult) error {
	comment := fmt.Sprintf("%s\n\nChecks failed. Returning to development.\n\n%s",
		qaReviewHeader, checkSummary(checks))
	if err := q.tracker.AddComment(ctx, item.Number, comment); err != nil {
		return fmt.Errorf("failed to post QA feedback on item #%d: %w", item.Number, err)
	}

	if err := workflow.ApplyStatus(ctx, q.tracker, item.Number, workflow.StatusInProgress); err != nil {
		return err
	}

	failed := make([]any, 0, len(checks))
	for _, c := range checks {
		if !c.passed {
			failed = append(failed, c.name)
		}
	}
	q.pub.Publish(ctx, workflow.NewEvent(workflow.KindQAFailed, q.name, item.Number,
		map[string]any{"failed_checks": failed}))
	publishStatusChanged(ctx, q.pub, q.name, item.Number, workflow.StatusReadyForQA, workflow.StatusInProgress)
	return nil
}

func checkSummary(checks []checkResult) string {
	var b strings.Builder
	for _, c := range checks {
		mark := "PASS"
		if !c.passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", c.name, mark)
		if !c.passed && c.detail != "" {
			fmt.Fprintf(&b, "  %s\n", firstLines(c.detail, 6))
		}
	}
	return b.String()
}

// firstLines truncates long model feedback for the comment body.
func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + "\n  ..."
}

func (q *QA) reviewPrompt(item *tracker.Item, branch string) string {
	return fmt.Sprintf(`Review the implementation on branch %s for the following requirement.
Assess correctness, completeness, and code quality.

Title: %s

Requirement:
%s

Respond with a line "VERDICT: PASS" or "VERDICT: FAIL", followed by specific feedback.`,
		branch, item.Title, item.Body)
}

func (q *QA) coveragePrompt(item *tracker.Item) string {
	return fmt.Sprintf(`Given the following requirement and its analysis, judge whether an
implementation addressing it would cover every stated requirement.

Title: %s

Requirement:
%s

Respond with a line "VERDICT: PASS" or "VERDICT: FAIL", followed by the list of
any requirements that appear uncovered.`, item.Title, item.Body)
}
