package roles

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/warrenhq/warren/internal/llm"
	"github.com/warrenhq/warren/internal/tracker"
	"github.com/warrenhq/warren/pkg/workflow"
)

// fakeTracker is an in-memory tracker with failure injection and an
// operation log for ordering assertions.
type fakeTracker struct {
	mu       sync.Mutex
	items    map[int]*tracker.Item
	comments map[int][]tracker.Comment
	branches map[string]bool
	files    map[string]map[string]string
	messages []string
	prs      []prRecord
	ops      []string

	guidelines string

	commentErr error
	branchErr  error
	prErr      error
}

type prRecord struct {
	title, body, head, base string
}

func newFakeTracker(items ...tracker.Item) *fakeTracker {
	f := &fakeTracker{
		items:    make(map[int]*tracker.Item),
		comments: make(map[int][]tracker.Comment),
		branches: make(map[string]bool),
		files:    make(map[string]map[string]string),
	}
	for i := range items {
		item := items[i]
		f.items[item.Number] = &item
	}
	return f
}

func (f *fakeTracker) logOp(format string, args ...any) {
	f.ops = append(f.ops, fmt.Sprintf(format, args...))
}

func (f *fakeTracker) ListItems(ctx context.Context, state string, labels []string) ([]tracker.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tracker.Item
	for _, item := range f.items {
		if state != "" && item.State != state {
			continue
		}
		ok := true
		for _, want := range labels {
			found := false
			for _, l := range item.Labels {
				if l == want {
					found = true
				}
			}
			if !found {
				ok = false
			}
		}
		if ok {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeTracker) GetItem(ctx context.Context, number int) (*tracker.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[number]
	if !ok {
		return nil, &tracker.APIError{StatusCode: 404, Message: "not found"}
	}
	copied := *item
	copied.Labels = append([]string(nil), item.Labels...)
	return &copied, nil
}

func (f *fakeTracker) ItemLabels(ctx context.Context, number int) ([]string, error) {
	item, err := f.GetItem(ctx, number)
	if err != nil {
		return nil, err
	}
	return item.Labels, nil
}

func (f *fakeTracker) AddLabels(ctx context.Context, number int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[number]
	if !ok {
		return &tracker.APIError{StatusCode: 404, Message: "not found"}
	}
	item.Labels = append(item.Labels, labels...)
	f.logOp("add:%s", strings.Join(labels, ","))
	return nil
}

func (f *fakeTracker) RemoveLabel(ctx context.Context, number int, label string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[number]
	if !ok {
		return false, &tracker.APIError{StatusCode: 404, Message: "not found"}
	}
	for i, l := range item.Labels {
		if l == label {
			item.Labels = append(item.Labels[:i], item.Labels[i+1:]...)
			f.logOp("remove:%s", label)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTracker) AddComment(ctx context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments[number] = append(f.comments[number], tracker.Comment{Body: body, Author: "warren[bot]"})
	f.logOp("comment")
	return nil
}

func (f *fakeTracker) ListComments(ctx context.Context, number int) ([]tracker.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracker.Comment(nil), f.comments[number]...), nil
}

func (f *fakeTracker) UpdateItem(ctx context.Context, number int, update tracker.ItemUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[number]
	if !ok {
		return &tracker.APIError{StatusCode: 404, Message: "not found"}
	}
	if update.Title != nil {
		item.Title = *update.Title
	}
	if update.Body != nil {
		item.Body = *update.Body
	}
	if update.State != nil {
		item.State = *update.State
	}
	f.logOp("update")
	return nil
}

func (f *fakeTracker) CreateBranch(ctx context.Context, name, fromBranch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.branchErr != nil {
		return f.branchErr
	}
	f.branches[name] = true
	f.logOp("branch:%s", name)
	return nil
}

func (f *fakeTracker) BranchExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branches[name], nil
}

func (f *fakeTracker) WriteFile(ctx context.Context, path, content, message, branch, previousSHA string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files[branch] == nil {
		f.files[branch] = make(map[string]string)
	}
	f.files[branch][path] = content
	f.messages = append(f.messages, message)
	f.logOp("write:%s", path)
	return nil
}

func (f *fakeTracker) ReadFile(ctx context.Context, path, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == guidelinesPath && f.guidelines != "" {
		return f.guidelines, nil
	}
	return "", &tracker.APIError{StatusCode: 404, Message: "not found"}
}

func (f *fakeTracker) OpenPullRequest(ctx context.Context, title, body, head, base string) (*tracker.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prErr != nil {
		return nil, f.prErr
	}
	f.prs = append(f.prs, prRecord{title: title, body: body, head: head, base: base})
	f.logOp("pr")
	return &tracker.PullRequest{Number: 99, URL: "https://example.com/pr/99"}, nil
}

func (f *fakeTracker) labels(number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.items[number].Labels...)
}

// fakePub records published events. With dead set it reports delivery
// failure the way a disconnected bus does, while still recording the attempt.
type fakePub struct {
	mu     sync.Mutex
	dead   bool
	events []*workflow.Event
}

func (p *fakePub) Publish(ctx context.Context, e *workflow.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return !p.dead
}

func (p *fakePub) kinds() []workflow.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]workflow.Kind, 0, len(p.events))
	for _, e := range p.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (p *fakePub) lastOfKind(kind workflow.Kind) *workflow.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Kind == kind {
			return p.events[i]
		}
	}
	return nil
}

// fakeLLM delegates to function fields; nil fields fail the call.
type fakeLLM struct {
	analyze   func(text string) (*llm.Analysis, error)
	questions func(text string) ([]string, error)
	generate  func(prompt string) (*llm.Response, error)
	genCode   func(prompt, repoContext string) (*llm.Response, error)
}

func (f *fakeLLM) AnalyzeRequirement(ctx context.Context, body string) (*llm.Analysis, error) {
	if f.analyze == nil {
		return nil, fmt.Errorf("unexpected AnalyzeRequirement call")
	}
	return f.analyze(body)
}

func (f *fakeLLM) ClarificationQuestions(ctx context.Context, body string) ([]string, error) {
	if f.questions == nil {
		return nil, fmt.Errorf("unexpected ClarificationQuestions call")
	}
	return f.questions(body)
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	if f.generate == nil {
		return nil, fmt.Errorf("unexpected Generate call")
	}
	return f.generate(prompt)
}

func (f *fakeLLM) GenerateCode(ctx context.Context, prompt, repoContext string) (*llm.Response, error) {
	if f.genCode == nil {
		return nil, fmt.Errorf("unexpected GenerateCode call")
	}
	return f.genCode(prompt, repoContext)
}
