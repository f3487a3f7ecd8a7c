package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/warrenhq/warren/internal/tracker"
	"github.com/warrenhq/warren/pkg/workflow"
)

// PollForStatus polls the tracker until the item reaches the wanted status.
// Returns an error if the timeout elapses first. Polls every 200ms for the
// specified timeout duration.
func PollForStatus(ctx context.Context, t tracker.Tracker, number int, want workflow.Status, timeout time.Duration) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timeoutCh:
			return fmt.Errorf("timeout waiting for item #%d to reach %s after %v", number, want, timeout)

		case <-ticker.C:
			labels, err := t.ItemLabels(ctx, number)
			if err != nil {
				if tracker.IsNotFound(err) {
					// Not visible yet, continue polling
					continue
				}
				return fmt.Errorf("failed to query item #%d: %w", number, err)
			}

			if workflow.StatusFromLabels(labels) == want {
				return nil
			}
		}
	}
}
