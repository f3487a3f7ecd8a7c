package filter

import (
	"path/filepath"
	"time"

	"github.com/warrenhq/warren/pkg/workflow"
)

// Criteria defines filtering criteria for coordination events.
// All filters are ANDed together - an event must match ALL criteria to pass.
type Criteria struct {
	Since       time.Time // Zero = no filter
	KindGlob    string    // Glob pattern for the event kind, empty = no filter
	Agent       string    // Exact match for the publishing agent, empty = no filter
	IssueNumber int       // Exact match for the subject item, 0 = no filter
}

// Matches returns true if the event matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(e *workflow.Event) bool {
	// Time filtering - events carry RFC3339 timestamps; an unparseable
	// timestamp fails a time-bounded filter rather than slipping through
	if !c.Since.IsZero() {
		ts, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil || ts.Before(c.Since) {
			return false
		}
	}

	// Kind filtering - glob pattern matching
	if c.KindGlob != "" {
		matched, err := filepath.Match(c.KindGlob, string(e.Kind))
		if err != nil || !matched {
			return false
		}
	}

	// Agent filtering - exact match on the publisher
	if c.Agent != "" && e.Agent != c.Agent {
		return false
	}

	// Item filtering - exact match on the subject item
	if c.IssueNumber != 0 && e.IssueNumber != c.IssueNumber {
		return false
	}

	return true
}
