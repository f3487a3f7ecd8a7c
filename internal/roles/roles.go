// Package roles implements the per-role behaviors hosted by the agent
// runtime: requirements analysis, frontend and backend code generation, and
// QA review. Each role is a bounded sequence of tracker and LLM calls ending
// in a status transition; all durable state lives in the tracker, so a role
// can crash at any point and be retried from the labels alone.
package roles

import (
	"context"
	"log"
	"strings"

	"github.com/warrenhq/warren/internal/llm"
	"github.com/warrenhq/warren/internal/tracker"
	"github.com/warrenhq/warren/pkg/workflow"
)

// Publisher is the bus surface roles use for coordination events. A failed
// publish is a monitoring gap, never a reason to abort a tracker mutation.
type Publisher interface {
	Publish(ctx context.Context, e *workflow.Event) bool
}

// Analyzer is the LLM surface the requirements role needs.
type Analyzer interface {
	AnalyzeRequirement(ctx context.Context, body string) (*llm.Analysis, error)
	ClarificationQuestions(ctx context.Context, body string) ([]string, error)
}

// Generator is the LLM surface the code generation and QA roles need.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*llm.Response, error)
	GenerateCode(ctx context.Context, prompt, repoContext string) (*llm.Response, error)
}

// Comment headers that identify agent-authored comments. Follow-up detection
// relies on these: any comment not starting with one of them counts as a
// human reply.
const (
	clarificationHeader = "## Clarification Needed"
	analysisHeader      = "## Requirements Analysis"
	qaReviewHeader      = "## QA Review Results"
)

func isAgentComment(body string) bool {
	for _, h := range []string{clarificationHeader, analysisHeader, qaReviewHeader} {
		if strings.HasPrefix(body, h) {
			return true
		}
	}
	return false
}

// fetchInStatus re-fetches an item and confirms it is still in the expected
// status. Poll results go stale: another agent (or a human) may have moved
// the item between the poll and now. A vanished or moved item is a skip, not
// an error.
func fetchInStatus(ctx context.Context, t tracker.Tracker, number int, want workflow.Status) (*tracker.Item, bool, error) {
	item, err := t.GetItem(ctx, number)
	if err != nil {
		if tracker.IsNotFound(err) {
			log.Printf("[WARN] Item #%d disappeared before processing", number)
			return nil, false, nil
		}
		return nil, false, err
	}
	if got := workflow.StatusFromLabels(item.Labels); got != want {
		log.Printf("[INFO] Skipping item #%d: status is %s, expected %s", number, got, want)
		return nil, false, nil
	}
	return item, true, nil
}

func itemText(item *tracker.Item) string {
	return strings.TrimSpace(item.Title + "\n\n" + item.Body)
}

func publishStatusChanged(ctx context.Context, p Publisher, agent string, number int, from, to workflow.Status) {
	p.Publish(ctx, workflow.NewEvent(workflow.KindStatusChanged, agent, number, map[string]any{
		"from": string(from),
		"to":   string(to),
	}))
}
