package printer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/warrenhq/warren/pkg/workflow"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Color definitions
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Printf("✓ %s", msg)
	} else {
		green.Print(msg)
	}
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		yellow.Printf("⚠️  %s", msg)
	} else {
		yellow.Print(msg)
	}
}

// Error creates a formatted error message with title, explanation, and suggestions
// Prints the formatted error to stderr with colors and returns a simple error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	// Print title in red to stderr
	red.Fprintf(os.Stderr, "%s\n\n", title)

	// Print explanation
	fmt.Fprintf(os.Stderr, "%s\n", explanation)

	// Print suggestions
	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Event prints one coordination event as a colored single line, for the
// watch command.
func Event(e *workflow.Event) {
	line := FormatEvent(e)
	switch e.Kind {
	case workflow.KindAgentError, workflow.KindQAFailed:
		red.Println(line)
	case workflow.KindQAPassed:
		green.Println(line)
	case workflow.KindStatusChanged:
		yellow.Println(line)
	case workflow.KindAgentStarted, workflow.KindAgentStopped:
		cyan.Println(line)
	default:
		fmt.Println(line)
	}
}

// FormatEvent renders an event as "timestamp  agent  kind  [#n]  [payload]".
// Payload keys are sorted so the output is stable.
func FormatEvent(e *workflow.Event) string {
	parts := []string{e.Timestamp, e.Agent, string(e.Kind)}
	if e.IssueNumber != 0 {
		parts = append(parts, fmt.Sprintf("#%d", e.IssueNumber))
	}

	if len(e.Payload) > 0 {
		keys := make([]string, 0, len(e.Payload))
		for k := range e.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, fmt.Sprintf("%s=%v", k, e.Payload[k]))
		}
		parts = append(parts, strings.Join(kv, " "))
	}

	return strings.Join(parts, "  ")
}

// StatusLine renders an item number, derived status, and title for the
// status command.
func StatusLine(number int, title string, status workflow.Status) string {
	return fmt.Sprintf("#%-5d %-25s %s", number, status, title)
}
