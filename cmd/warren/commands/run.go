package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/agent"
	"github.com/warrenhq/warren/internal/bus"
	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/llm"
	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/internal/roles"
	"github.com/warrenhq/warren/internal/tracker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured agents until interrupted",
	Long: `Run starts every agent defined in the configuration file and keeps them
polling the tracker until SIGINT or SIGTERM.

Examples:
  # Run with the default warren.yml
  warren run

  # Run a specific configuration
  warren run --config deploy/warren.yml`,
	RunE: runAgents,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Configuration error", err.Error(),
			[]string{fmt.Sprintf("Check %s against the documented format", configPath)})
	}

	runners, err := buildRunners(cfg)
	if err != nil {
		return printer.Error("Startup error", err.Error(), nil)
	}

	ctx := context.Background()
	var started []*agent.Runner
	for _, r := range runners {
		if err := r.Start(ctx); err != nil {
			for _, s := range started {
				s.Stop()
			}
			return printer.Error("Failed to start agents", err.Error(),
				[]string{"Verify the Redis address in the bus section is reachable"})
		}
		started = append(started, r)
	}

	printer.Success("Started %d agent runner(s) on instance '%s'\n", len(started), cfg.Instance)
	printer.Info("Press Ctrl+C to stop.\n")

	// Set up signal handling for SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("[INFO] Received signal: %v", sig)

	// Graceful shutdown sequence, bounded so a wedged collaborator cannot
	// hold the process open.
	log.Printf("[INFO] Initiating graceful shutdown...")
	done := make(chan struct{})
	go func() {
		for _, r := range started {
			if err := r.Stop(); err != nil {
				log.Printf("[WARN] Error stopping agent: %v", err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
		printer.Success("All agents stopped\n")
	case <-time.After(10 * time.Second):
		log.Printf("[WARN] Shutdown timed out after 10s, exiting anyway")
	}

	return nil
}

// buildRunners wires one runner per configured agent. The requirements role
// gets a second runner for its clarification follow-up side. Every runner
// owns its own bus connection, mirroring one connection per agent process.
func buildRunners(cfg *config.WarrenConfig) ([]*agent.Runner, error) {
	gh := tracker.NewGitHub(cfg.Tracker.APIURL, cfg.Tracker.Owner, cfg.Tracker.Repo, cfg.Tracker.Token)

	client, err := llm.New(llm.Options{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	newBus := func() (*bus.Bus, error) {
		return bus.New(&redis.Options{
			Addr:     cfg.Bus.RedisAddr,
			Password: cfg.Bus.RedisPassword,
			DB:       cfg.Bus.RedisDB,
		}, cfg.Instance)
	}

	var runners []*agent.Runner
	for name, a := range cfg.Agents {
		b, err := newBus()
		if err != nil {
			return nil, err
		}

		switch a.Role {
		case "requirements":
			req := roles.NewRequirements(name, gh, client, b)
			runners = append(runners, agent.NewRunner(req, gh, b, a.Interval()))

			fb, err := newBus()
			if err != nil {
				return nil, err
			}
			runners = append(runners, agent.NewRunner(req.FollowUp(), gh, fb, a.Interval()))
		case "frontend":
			s := roles.NewFrontend(name, cfg.Tracker.BaseBranch, gh, client, b)
			runners = append(runners, agent.NewRunner(s, gh, b, a.Interval()))
		case "backend":
			s := roles.NewBackend(name, cfg.Tracker.BaseBranch, gh, client, b)
			runners = append(runners, agent.NewRunner(s, gh, b, a.Interval()))
		case "qa":
			s := roles.NewQA(name, cfg.Tracker.BaseBranch, gh, client, b)
			runners = append(runners, agent.NewRunner(s, gh, b, a.Interval()))
		default:
			return nil, fmt.Errorf("agent '%s': unknown role %s", name, a.Role)
		}
	}

	return runners, nil
}
