package roles

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrenhq/warren/internal/llm"
	"github.com/warrenhq/warren/pkg/workflow"
)

func TestQAProcess(t *testing.T) {
	ctx := context.Background()
	branch := "backend/issue-7-add-csv-export"

	t.Run("all checks pass: PR opened and item done", func(t *testing.T) {
		ft := newFakeTracker(newItem(7, "ready_for_qa"))
		ft.branches[branch] = true

		pub := &fakePub{}
		ml := &fakeLLM{
			generate: func(prompt string) (*llm.Response, error) {
				return &llm.Response{Content: "VERDICT: PASS\nClean implementation."}, nil
			},
		}
		q := NewQA("qa-agent", "main", ft, ml, pub)
		assert.Equal(t, workflow.StatusReadyForQA, q.Ready())

		item := newItem(7, "ready_for_qa")
		require.NoError(t, q.Process(ctx, &item))

		require.Len(t, ft.prs, 1)
		assert.Equal(t, branch, ft.prs[0].head)
		assert.Equal(t, "main", ft.prs[0].base)
		assert.Contains(t, ft.prs[0].body, "Closes #7")

		require.Len(t, ft.comments[7], 1)
		assert.True(t, strings.HasPrefix(ft.comments[7][0].Body, qaReviewHeader))
		assert.Contains(t, ft.comments[7][0].Body, "All checks passed")

		assert.Equal(t, []string{"done"}, ft.labels(7))

		kinds := pub.kinds()
		assert.Contains(t, kinds, workflow.KindCodeReviewed)
		assert.Contains(t, kinds, workflow.KindQAPassed)
		passed := pub.lastOfKind(workflow.KindQAPassed)
		assert.Equal(t, float64(99), passed.Payload["pull_request"])
	})

	t.Run("failed review: feedback comment and back to development", func(t *testing.T) {
		ft := newFakeTracker(newItem(7, "ready_for_qa"))
		ft.branches[branch] = true

		pub := &fakePub{}
		calls := 0
		ml := &fakeLLM{
			generate: func(prompt string) (*llm.Response, error) {
				calls++
				if calls == 1 {
					return &llm.Response{Content: "VERDICT: FAIL\nError handling is missing."}, nil
				}
				return &llm.Response{Content: "VERDICT: PASS"}, nil
			},
		}
		q := NewQA("qa-agent", "main", ft, ml, pub)

		item := newItem(7, "ready_for_qa")
		require.NoError(t, q.Process(ctx, &item))

		assert.Empty(t, ft.prs)
		assert.Equal(t, []string{"in_progress"}, ft.labels(7))

		require.Len(t, ft.comments[7], 1)
		assert.Contains(t, ft.comments[7][0].Body, "code review**: FAIL")
		assert.Contains(t, ft.comments[7][0].Body, "Error handling is missing.")

		failed := pub.lastOfKind(workflow.KindQAFailed)
		require.NotNil(t, failed)
		assert.Equal(t, []any{"code review"}, failed.Payload["failed_checks"])
	})

	t.Run("missing branch fails without consulting the model", func(t *testing.T) {
		ft := newFakeTracker(newItem(7, "ready_for_qa"))
		pub := &fakePub{}
		q := NewQA("qa-agent", "main", ft, &fakeLLM{}, pub)

		item := newItem(7, "ready_for_qa")
		require.NoError(t, q.Process(ctx, &item))

		assert.Empty(t, ft.prs)
		assert.Equal(t, []string{"in_progress"}, ft.labels(7))
		assert.Contains(t, ft.comments[7][0].Body, "no implementation branch found")
		assert.Contains(t, pub.kinds(), workflow.KindQAFailed)
	})

	t.Run("review provider failure retries later from ready_for_qa", func(t *testing.T) {
		ft := newFakeTracker(newItem(7, "ready_for_qa"))
		ft.branches[branch] = true
		ml := &fakeLLM{
			generate: func(prompt string) (*llm.Response, error) {
				return nil, errors.New("provider down")
			},
		}
		q := NewQA("qa-agent", "main", ft, ml, &fakePub{})

		item := newItem(7, "ready_for_qa")
		require.Error(t, q.Process(ctx, &item))

		assert.Equal(t, []string{"ready_for_qa"}, ft.labels(7))
		assert.Empty(t, ft.prs)
		assert.Empty(t, ft.comments[7])
	})

	t.Run("finds a frontend branch too", func(t *testing.T) {
		ft := newFakeTracker(newItem(7, "ready_for_qa"))
		ft.branches["frontend/issue-7-add-csv-export"] = true
		ml := &fakeLLM{
			generate: func(prompt string) (*llm.Response, error) {
				return &llm.Response{Content: "VERDICT: PASS"}, nil
			},
		}
		q := NewQA("qa-agent", "main", ft, ml, &fakePub{})

		item := newItem(7, "ready_for_qa")
		require.NoError(t, q.Process(ctx, &item))
		require.Len(t, ft.prs, 1)
		assert.Equal(t, "frontend/issue-7-add-csv-export", ft.prs[0].head)
	})

	t.Run("skips an item whose status moved", func(t *testing.T) {
		ft := newFakeTracker(newItem(7, "done"))
		q := NewQA("qa-agent", "main", ft, &fakeLLM{}, &fakePub{})

		stale := newItem(7, "ready_for_qa")
		require.NoError(t, q.Process(ctx, &stale))
		assert.Empty(t, ft.ops)
	})
}

func TestVerdictParsing(t *testing.T) {
	assert.True(t, verdictPassed("VERDICT: PASS\nall good"))
	assert.True(t, verdictPassed("Summary first.\nverdict: pass"))
	assert.False(t, verdictPassed("VERDICT: FAIL\nneeds work"))
	assert.False(t, verdictPassed("looks fine to me"))
}
