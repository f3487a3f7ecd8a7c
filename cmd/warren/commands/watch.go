package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/bus"
	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/filter"
	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/internal/timespec"
	"github.com/warrenhq/warren/pkg/workflow"
)

var (
	watchAgentName string
	watchKindGlob  string
	watchItem      int
	watchSince     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream coordination events",
	Long: `Watch subscribes to the instance's coordination channel and prints every
matching event as it arrives.

Examples:
  # Watch all activity on the configured instance
  warren watch

  # Only QA outcomes for item 7 from the last hour
  warren watch --kind 'qa_*' --item 7 --since 1h

  # Also watch one agent's direct channel
  warren watch --agent qa-agent`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAgentName, "agent", "", "Only events from this agent (also watches its direct channel)")
	watchCmd.Flags().StringVar(&watchKindGlob, "kind", "", "Only event kinds matching this glob (e.g. 'qa_*')")
	watchCmd.Flags().IntVar(&watchItem, "item", 0, "Only events about this item")
	watchCmd.Flags().StringVar(&watchSince, "since", "", "Only events after this time ('1h30m' or RFC3339)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}

	criteria := &filter.Criteria{
		KindGlob:    watchKindGlob,
		Agent:       watchAgentName,
		IssueNumber: watchItem,
	}
	if watchSince != "" {
		since, err := timespec.Parse(watchSince)
		if err != nil {
			return printer.Error("Invalid --since", err.Error(),
				[]string{"Use a duration like '1h30m' or an RFC3339 timestamp"})
		}
		criteria.Since = since
	}

	b, err := bus.New(&redis.Options{
		Addr:     cfg.Bus.RedisAddr,
		Password: cfg.Bus.RedisPassword,
		DB:       cfg.Bus.RedisDB,
	}, cfg.Instance)
	if err != nil {
		return printer.Error("Failed to create bus client", err.Error(), nil)
	}

	handler := func(e *workflow.Event) {
		if criteria.Matches(e) {
			printer.Event(e)
		}
	}

	b.Subscribe(bus.EventsChannel(cfg.Instance), handler)
	if watchAgentName != "" {
		b.Subscribe(bus.AgentChannel(cfg.Instance, watchAgentName), handler)
	}

	if err := b.Connect(context.Background()); err != nil {
		return printer.Error("Failed to connect to event bus", err.Error(),
			[]string{"Verify the Redis address in the bus section is reachable"})
	}
	defer b.Disconnect()

	printer.Step("Watching instance '%s' (Ctrl+C to stop)\n", cfg.Instance)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	return nil
}
