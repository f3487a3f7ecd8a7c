package commands

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/internal/tracker"
	"github.com/warrenhq/warren/internal/watch"
	"github.com/warrenhq/warren/pkg/workflow"
)

var (
	statusWaitFor string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status [item]",
	Short: "Show the workflow status of open items",
	Long: `Status lists open tracker items with their derived workflow status.

With an item number and --wait, it blocks until the item reaches the given
status or the timeout elapses.

Examples:
  # List all open items
  warren status

  # Wait for item 7 to pass QA
  warren status 7 --wait done --timeout 10m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusWaitFor, "wait", "", "Block until the item reaches this status")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Minute, "Give up waiting after this long")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}

	gh := tracker.NewGitHub(cfg.Tracker.APIURL, cfg.Tracker.Owner, cfg.Tracker.Repo, cfg.Tracker.Token)
	ctx := context.Background()

	if len(args) == 1 {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return printer.Error("Invalid item number", args[0], nil)
		}

		if statusWaitFor != "" {
			want := workflow.Status(statusWaitFor)
			if err := want.Validate(); err != nil {
				return printer.Error("Unknown status", err.Error(), nil)
			}

			printer.Step("Waiting for item #%d to reach %s...\n", number, want)
			if err := watch.PollForStatus(ctx, gh, number, want, statusTimeout); err != nil {
				return printer.Error("Wait failed", err.Error(), nil)
			}
			printer.Success("Item #%d is %s\n", number, want)
			return nil
		}

		item, err := gh.GetItem(ctx, number)
		if err != nil {
			return printer.Error("Failed to fetch item", err.Error(), nil)
		}
		printer.Println(printer.StatusLine(item.Number, item.Title, workflow.StatusFromLabels(item.Labels)))
		return nil
	}

	items, err := gh.ListItems(ctx, "open", nil)
	if err != nil {
		return printer.Error("Failed to list items", err.Error(),
			[]string{"Verify the tracker token and repository in the configuration"})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Number < items[j].Number })
	for _, item := range items {
		printer.Println(printer.StatusLine(item.Number, item.Title, workflow.StatusFromLabels(item.Labels)))
	}
	printer.Info("%d open item(s)\n", len(items))
	return nil
}
