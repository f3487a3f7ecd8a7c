package roles

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/warrenhq/warren/internal/tracker"
	"github.com/warrenhq/warren/pkg/workflow"
)

// guidelinesPath is read from the base branch and folded into the generation
// context when present.
const guidelinesPath = ".github/CODING_GUIDELINES.md"

// CodeGen is the shared implementation behind the frontend and backend
// development roles. The two differ only in branch prefix and prompt focus.
//
// The claim sequence is transition-first: the item moves to in_progress
// before any generation happens, so a second development agent polling the
// same instance never picks up the same item. A generation failure leaves the
// item in_progress for a later retry; it never falls back to ready_for_dev.
type CodeGen struct {
	name       string
	rolePrefix string
	focus      string
	baseBranch string
	tracker    tracker.Tracker
	llm        Generator
	pub        Publisher
}

// NewFrontend creates the frontend development role.
func NewFrontend(name, baseBranch string, t tracker.Tracker, g Generator, p Publisher) *CodeGen {
	return &CodeGen{
		name:       name,
		rolePrefix: "frontend",
		focus:      "user interface components, styling, and client-side interaction logic",
		baseBranch: baseBranch,
		tracker:    t,
		llm:        g,
		pub:        p,
	}
}

// NewBackend creates the backend development role.
func NewBackend(name, baseBranch string, t tracker.Tracker, g Generator, p Publisher) *CodeGen {
	return &CodeGen{
		name:       name,
		rolePrefix: "backend",
		focus:      "APIs, data models, business logic, and persistence",
		baseBranch: baseBranch,
		tracker:    t,
		llm:        g,
		pub:        p,
	}
}

func (c *CodeGen) Name() string { return c.name }

func (c *CodeGen) Ready() workflow.Status { return workflow.StatusReadyForDev }

func (c *CodeGen) Process(ctx context.Context, item *tracker.Item) error {
	fresh, ok, err := fetchInStatus(ctx, c.tracker, item.Number, workflow.StatusReadyForDev)
	if err != nil || !ok {
		return err
	}

	if err := workflow.ApplyStatus(ctx, c.tracker, fresh.Number, workflow.StatusInProgress); err != nil {
		return err
	}
	publishStatusChanged(ctx, c.pub, c.name, fresh.Number, workflow.StatusReadyForDev, workflow.StatusInProgress)

	guidelines := ""
	if s, err := c.tracker.ReadFile(ctx, guidelinesPath, c.baseBranch); err == nil {
		guidelines = s
	} else if !tracker.IsNotFound(err) {
		log.Printf("[WARN] Could not read %s: %v", guidelinesPath, err)
	}

	resp, err := c.llm.GenerateCode(ctx, c.buildPrompt(fresh), guidelines)
	if err != nil {
		return fmt.Errorf("code generation for item #%d: %w", fresh.Number, err)
	}

	blocks := ParseFileBlocks(resp.Content)
	if len(blocks) == 0 {
		return fmt.Errorf("generation for item #%d produced no file blocks", fresh.Number)
	}

	branch := BranchName(c.rolePrefix, fresh.Number, fresh.Title)
	if err := c.tracker.CreateBranch(ctx, branch, c.baseBranch); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	paths := make([]any, 0, len(blocks))
	for _, b := range blocks {
		paths = append(paths, b.Path)
	}
	c.pub.Publish(ctx, workflow.NewEvent(workflow.KindCodeGenerated, c.name, fresh.Number,
		map[string]any{"branch": branch, "files": paths}))

	message := fmt.Sprintf("feat(%s): #%d %s", c.rolePrefix, fresh.Number, fresh.Title)
	for _, b := range blocks {
		if err := c.tracker.WriteFile(ctx, b.Path, b.Content, message, branch, ""); err != nil {
			return fmt.Errorf("failed to commit %s on %s: %w", b.Path, branch, err)
		}
	}
	c.pub.Publish(ctx, workflow.NewEvent(workflow.KindCodeCommitted, c.name, fresh.Number,
		map[string]any{"branch": branch, "file_count": float64(len(blocks))}))

	if err := workflow.ApplyStatus(ctx, c.tracker, fresh.Number, workflow.StatusReadyForQA); err != nil {
		return err
	}
	publishStatusChanged(ctx, c.pub, c.name, fresh.Number, workflow.StatusInProgress, workflow.StatusReadyForQA)

	log.Printf("[INFO] %s committed %d file(s) for item #%d on %s", c.name, len(blocks), fresh.Number, branch)
	return nil
}

func (c *CodeGen) buildPrompt(item *tracker.Item) string {
	return fmt.Sprintf(`Implement the following requirement, focusing on %s.

Title: %s

Description:
%s

Return each file as a section framed by a line of the form
=== path/to/file ===
followed by the complete file content. Do not include anything outside the
file sections.`, c.focus, item.Title, item.Body)
}

// FileBlock is one generated file parsed from a model reply.
type FileBlock struct {
	Path    string
	Content string
}

// ParseFileBlocks splits a model reply into files framed by === path ===
// marker lines. Text before the first marker is discarded. Marker lines with
// an empty path end the current block without starting a new one.
func ParseFileBlocks(content string) []FileBlock {
	var blocks []FileBlock
	var current *FileBlock
	var buf []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimRight(strings.Join(buf, "\n"), "\n") + "\n"
		blocks = append(blocks, *current)
		current = nil
		buf = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "===") && strings.HasSuffix(trimmed, "===") && len(trimmed) >= 6 {
			flush()
			if path := strings.TrimSpace(strings.Trim(trimmed, "=")); path != "" {
				current = &FileBlock{Path: path}
			}
			continue
		}
		if current != nil {
			buf = append(buf, line)
		}
	}
	flush()

	return blocks
}

// BranchName builds the implementation branch name for a role and item.
func BranchName(role string, number int, title string) string {
	return fmt.Sprintf("%s/issue-%d-%s", role, number, slugify(title))
}

// slugify reduces a title to a branch-safe slug: lowercase alphanumerics
// joined by single hyphens, capped at 40 characters.
func slugify(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}

	s := b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	if s == "" {
		s = "item"
	}
	return s
}
