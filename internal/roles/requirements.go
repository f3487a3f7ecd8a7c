package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/warrenhq/warren/internal/llm"
	"github.com/warrenhq/warren/internal/tracker"
	"github.com/warrenhq/warren/pkg/workflow"
)

// Requirements analyzes newly filed items. Clear requirements get an analysis
// summary prepended to the body and move to ready_for_dev; ambiguous ones get
// a questions comment and move to waiting_for_clarification.
//
// The role keeps no memory of what it asked. The waiting state is re-derived
// from the comment thread on every cycle, so a restarted agent resumes a
// clarification exchange exactly where the tracker shows it stopped.
type Requirements struct {
	name    string
	tracker tracker.Tracker
	llm     Analyzer
	pub     Publisher
}

// NewRequirements creates the requirements role.
func NewRequirements(name string, t tracker.Tracker, a Analyzer, p Publisher) *Requirements {
	return &Requirements{name: name, tracker: t, llm: a, pub: p}
}

func (r *Requirements) Name() string { return r.name }

func (r *Requirements) Ready() workflow.Status { return workflow.StatusNew }

func (r *Requirements) Process(ctx context.Context, item *tracker.Item) error {
	fresh, ok, err := fetchInStatus(ctx, r.tracker, item.Number, workflow.StatusNew)
	if err != nil || !ok {
		return err
	}

	analysis, err := r.llm.AnalyzeRequirement(ctx, itemText(fresh))
	if err != nil {
		return fmt.Errorf("requirements analysis for item #%d: %w", fresh.Number, err)
	}

	if analysis.NeedsClarification {
		return r.askQuestions(ctx, fresh, itemText(fresh), workflow.StatusNew)
	}
	return r.markReady(ctx, fresh, analysis, workflow.StatusNew)
}

// FollowUp returns the companion strategy that watches items parked in
// waiting_for_clarification and resumes analysis once a human has answered.
func (r *Requirements) FollowUp() *FollowUp {
	return &FollowUp{r: r}
}

// FollowUp is the clarification side of the requirements role. It shares the
// Requirements internals and differs only in which status it polls.
type FollowUp struct {
	r *Requirements
}

func (f *FollowUp) Name() string { return f.r.name }

func (f *FollowUp) Ready() workflow.Status { return workflow.StatusWaitingForClarification }

func (f *FollowUp) Process(ctx context.Context, item *tracker.Item) error {
	return f.r.processFollowUp(ctx, item)
}

func (r *Requirements) processFollowUp(ctx context.Context, item *tracker.Item) error {
	fresh, ok, err := fetchInStatus(ctx, r.tracker, item.Number, workflow.StatusWaitingForClarification)
	if err != nil || !ok {
		return err
	}

	comments, err := r.tracker.ListComments(ctx, fresh.Number)
	if err != nil {
		return fmt.Errorf("failed to read comments on item #%d: %w", fresh.Number, err)
	}

	answers := answersSinceLastQuestions(comments)
	if len(answers) == 0 {
		// Still waiting for a human.
		return nil
	}

	text := itemText(fresh) + "\n\nClarifications provided:\n" + strings.Join(answers, "\n")
	analysis, err := r.llm.AnalyzeRequirement(ctx, text)
	if err != nil {
		return fmt.Errorf("follow-up analysis for item #%d: %w", fresh.Number, err)
	}

	if analysis.NeedsClarification {
		return r.askQuestions(ctx, fresh, text, workflow.StatusWaitingForClarification)
	}
	return r.markReady(ctx, fresh, analysis, workflow.StatusWaitingForClarification)
}

// answersSinceLastQuestions returns the human comments posted after the most
// recent questions comment. With no questions comment on record, every human
// comment counts.
func answersSinceLastQuestions(comments []tracker.Comment) []string {
	lastQuestions := -1
	for i, c := range comments {
		if strings.HasPrefix(c.Body, clarificationHeader) {
			lastQuestions = i
		}
	}

	var answers []string
	for _, c := range comments[lastQuestions+1:] {
		if isAgentComment(c.Body) {
			continue
		}
		answers = append(answers, c.Body)
	}
	return answers
}

// askQuestions posts a numbered questions comment. From new the item moves to
// waiting_for_clarification; from waiting_for_clarification it stays put, so
// only the comment is added.
func (r *Requirements) askQuestions(ctx context.Context, item *tracker.Item, text string, from workflow.Status) error {
	questions, err := r.llm.ClarificationQuestions(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to generate questions for item #%d: %w", item.Number, err)
	}

	var b strings.Builder
	b.WriteString(clarificationHeader + "\n\n")
	b.WriteString("This requirement needs more detail before development can start:\n\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\nPlease answer in a comment. Analysis resumes automatically.")

	if err := r.tracker.AddComment(ctx, item.Number, b.String()); err != nil {
		return fmt.Errorf("failed to post questions on item #%d: %w", item.Number, err)
	}

	if from == workflow.StatusNew {
		if err := workflow.ApplyStatus(ctx, r.tracker, item.Number, workflow.StatusWaitingForClarification); err != nil {
			return err
		}
		publishStatusChanged(ctx, r.pub, r.name, item.Number, from, workflow.StatusWaitingForClarification)
	} else {
		r.pub.Publish(ctx, workflow.NewEvent(workflow.KindCommentAdded, r.name, item.Number,
			map[string]any{"reason": "follow_up_questions"}))
	}
	return nil
}

// markReady prepends the analysis summary to the item body and moves the
// item to ready_for_dev.
func (r *Requirements) markReady(ctx context.Context, item *tracker.Item, analysis *llm.Analysis, from workflow.Status) error {
	body := analysisSummary(analysis) + "\n\n---\n\n" + item.Body
	if err := r.tracker.UpdateItem(ctx, item.Number, tracker.ItemUpdate{Body: &body}); err != nil {
		return fmt.Errorf("failed to update body of item #%d: %w", item.Number, err)
	}

	if err := workflow.ApplyStatus(ctx, r.tracker, item.Number, workflow.StatusReadyForDev); err != nil {
		return err
	}
	publishStatusChanged(ctx, r.pub, r.name, item.Number, from, workflow.StatusReadyForDev)
	return nil
}

func analysisSummary(a *llm.Analysis) string {
	var b strings.Builder
	b.WriteString(analysisHeader + "\n")

	section := func(title string, entries []string) {
		if len(entries) == 0 {
			return
		}
		b.WriteString("\n**" + title + "**\n")
		for _, e := range entries {
			b.WriteString("- " + e + "\n")
		}
	}

	section("Functional requirements", a.FunctionalRequirements)
	section("Dependencies", a.Dependencies)
	if a.SuggestedApproach != "" {
		b.WriteString("\n**Suggested approach**\n" + a.SuggestedApproach + "\n")
	}
	section("Risks", a.Risks)

	// A reply the parser could not structure still carries the analysis.
	if len(a.FunctionalRequirements) == 0 && len(a.Dependencies) == 0 &&
		a.SuggestedApproach == "" && len(a.Risks) == 0 {
		b.WriteString("\n" + strings.TrimSpace(a.Raw) + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
