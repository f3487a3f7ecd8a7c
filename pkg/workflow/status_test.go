package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelFor(t *testing.T) {
	t.Run("maps every status to a unique label", func(t *testing.T) {
		seen := make(map[string]Status)
		for _, s := range statusOrder {
			label, err := LabelFor(s)
			require.NoError(t, err)
			require.NotEmpty(t, label)

			prev, dup := seen[label]
			require.False(t, dup, "label %q shared by %s and %s", label, prev, s)
			seen[label] = s
		}
	})

	t.Run("fixed label strings", func(t *testing.T) {
		cases := map[Status]string{
			StatusNew:                     "needs-analysis",
			StatusWaitingForClarification: "waiting_for_clarification",
			StatusReadyForDev:             "ready_for_dev",
			StatusInProgress:              "in_progress",
			StatusReadyForQA:              "ready_for_qa",
			StatusDone:                    "done",
			StatusBlocked:                 "blocked",
		}
		for s, want := range cases {
			got, err := LabelFor(s)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("rejects value outside the enumeration", func(t *testing.T) {
		_, err := LabelFor(Status("archived"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownStatus))
	})
}

func TestStatusFromLabels(t *testing.T) {
	t.Run("empty label set defaults to new", func(t *testing.T) {
		assert.Equal(t, StatusNew, StatusFromLabels(nil))
		assert.Equal(t, StatusNew, StatusFromLabels([]string{}))
	})

	t.Run("unrecognized labels default to new", func(t *testing.T) {
		assert.Equal(t, StatusNew, StatusFromLabels([]string{"bug", "frontend"}))
	})

	t.Run("single status label", func(t *testing.T) {
		assert.Equal(t, StatusReadyForQA, StatusFromLabels([]string{"ready_for_qa"}))
		assert.Equal(t, StatusBlocked, StatusFromLabels([]string{"enhancement", "blocked"}))
	})

	t.Run("multiple status labels resolve by enumeration order", func(t *testing.T) {
		// done precedes blocked in the declared order, regardless of the
		// order the labels arrive in.
		assert.Equal(t, StatusDone, StatusFromLabels([]string{"done", "blocked"}))
		assert.Equal(t, StatusDone, StatusFromLabels([]string{"blocked", "done"}))

		// Same answer on every call.
		for i := 0; i < 50; i++ {
			assert.Equal(t, StatusDone, StatusFromLabels([]string{"blocked", "done"}))
		}
	})
}

func TestIsLegalTransition(t *testing.T) {
	legal := map[Status][]Status{
		StatusNew:                     {StatusWaitingForClarification, StatusReadyForDev},
		StatusWaitingForClarification: {StatusReadyForDev},
		StatusReadyForDev:             {StatusInProgress},
		StatusInProgress:              {StatusReadyForQA, StatusBlocked},
		StatusBlocked:                 {StatusInProgress},
		StatusReadyForQA:              {StatusDone, StatusInProgress},
	}

	t.Run("accepts every edge in the table", func(t *testing.T) {
		for from, targets := range legal {
			for _, to := range targets {
				assert.True(t, IsLegalTransition(from, to), "%s -> %s", from, to)
			}
		}
	})

	t.Run("rejects every pair not in the table", func(t *testing.T) {
		isLegal := func(from, to Status) bool {
			for _, target := range legal[from] {
				if target == to {
					return true
				}
			}
			return false
		}
		for _, from := range statusOrder {
			for _, to := range statusOrder {
				if !isLegal(from, to) {
					assert.False(t, IsLegalTransition(from, to), "%s -> %s", from, to)
				}
			}
		}
	})

	t.Run("self transitions are illegal", func(t *testing.T) {
		for _, s := range statusOrder {
			assert.False(t, IsLegalTransition(s, s), "%s -> %s", s, s)
		}
	})

	t.Run("done is terminal", func(t *testing.T) {
		for _, to := range statusOrder {
			assert.False(t, IsLegalTransition(StatusDone, to))
		}
	})
}

// fakeLabeler records the order of label mutations so tests can assert the
// remove-old-then-add-new guarantee.
type fakeLabeler struct {
	labels  []string
	ops     []string
	readErr error
	addErr  error
}

func (f *fakeLabeler) ItemLabels(ctx context.Context, number int) ([]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]string, len(f.labels))
	copy(out, f.labels)
	return out, nil
}

func (f *fakeLabeler) AddLabels(ctx context.Context, number int, labels []string) error {
	if f.addErr != nil {
		return f.addErr
	}
	for _, l := range labels {
		f.ops = append(f.ops, "add:"+l)
		f.labels = append(f.labels, l)
	}
	return nil
}

func (f *fakeLabeler) RemoveLabel(ctx context.Context, number int, label string) (bool, error) {
	f.ops = append(f.ops, "remove:"+label)
	for i, l := range f.labels {
		if l == label {
			f.labels = append(f.labels[:i], f.labels[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func TestApplyStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("removes old status label before adding new", func(t *testing.T) {
		fake := &fakeLabeler{labels: []string{"bug", "ready_for_dev"}}

		err := ApplyStatus(ctx, fake, 7, StatusInProgress)
		require.NoError(t, err)

		assert.Equal(t, []string{"remove:ready_for_dev", "add:in_progress"}, fake.ops)
		assert.ElementsMatch(t, []string{"bug", "in_progress"}, fake.labels)
	})

	t.Run("scrubs every stale status label from a raced item", func(t *testing.T) {
		fake := &fakeLabeler{labels: []string{"ready_for_qa", "in_progress"}}

		// StatusFromLabels resolves the conflict to in_progress (lower in
		// enumeration order), from which ready_for_qa is legal.
		err := ApplyStatus(ctx, fake, 7, StatusReadyForQA)
		require.NoError(t, err)

		assert.Equal(t, []string{"ready_for_qa"}, fake.labels)
	})

	t.Run("rejects illegal transition before any mutation", func(t *testing.T) {
		fake := &fakeLabeler{labels: []string{"done"}}

		err := ApplyStatus(ctx, fake, 7, StatusInProgress)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIllegalTransition))
		assert.Empty(t, fake.ops, "no tracker mutation may precede validation")
	})

	t.Run("unlabeled item is treated as new", func(t *testing.T) {
		fake := &fakeLabeler{labels: []string{"enhancement"}}

		err := ApplyStatus(ctx, fake, 7, StatusReadyForDev)
		require.NoError(t, err)
		assert.Equal(t, []string{"add:ready_for_dev"}, fake.ops)
	})

	t.Run("rejects target outside the enumeration", func(t *testing.T) {
		fake := &fakeLabeler{}

		err := ApplyStatus(ctx, fake, 7, Status("archived"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownStatus))
		assert.Empty(t, fake.ops)
	})

	t.Run("propagates label read failure", func(t *testing.T) {
		fake := &fakeLabeler{readErr: errors.New("boom")}

		err := ApplyStatus(ctx, fake, 7, StatusReadyForDev)
		require.Error(t, err)
		assert.Empty(t, fake.ops)
	})
}

func TestAllStatusLabels(t *testing.T) {
	labels := AllStatusLabels()
	require.Len(t, labels, len(statusOrder))
	assert.Equal(t, "needs-analysis", labels[0])
	assert.Equal(t, "blocked", labels[len(labels)-1])
}
