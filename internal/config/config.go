package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// WarrenConfig represents the top-level warren.yml configuration
type WarrenConfig struct {
	Version  string           `yaml:"version"`
	Instance string           `yaml:"instance"`
	Tracker  TrackerConfig    `yaml:"tracker"`
	Bus      BusConfig        `yaml:"bus"`
	LLM      LLMConfig        `yaml:"llm"`
	Agents   map[string]Agent `yaml:"agents"`
}

// TrackerConfig specifies the issue tracker connection
type TrackerConfig struct {
	Provider   string `yaml:"provider"` // Required: "github"
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Token      string `yaml:"token"`
	APIURL     string `yaml:"api_url,omitempty"`     // Defaults to the public API
	BaseBranch string `yaml:"base_branch,omitempty"` // Default: main
}

// BusConfig specifies the event bus connection
type BusConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
}

// LLMConfig specifies the generation provider
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // Required: "openai" or "anthropic"
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// Agent represents a single agent configuration
type Agent struct {
	Role         string `yaml:"role"`                    // Required: requirements, frontend, backend, or qa
	PollInterval string `yaml:"poll_interval,omitempty"` // Default: 30s
}

// Interval returns the parsed poll interval. Call only after Validate.
func (a Agent) Interval() time.Duration {
	if a.PollInterval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(a.PollInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate performs strict validation on the configuration
func (c *WarrenConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: instance name, used to scope bus channels
	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}

	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	if err := c.Bus.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}

	// Required: at least one agent
	if len(c.Agents) == 0 {
		return fmt.Errorf("no agents defined")
	}

	for name, agent := range c.Agents {
		if err := agent.Validate(name); err != nil {
			return err
		}
	}

	// Enforce unique agent roles: two agents on the same role would race
	// each other for the same items.
	rolesSeen := make(map[string]string) // role -> agentName
	for agentName, agent := range c.Agents {
		if existing, exists := rolesSeen[agent.Role]; exists {
			return fmt.Errorf("duplicate agent role '%s' found (agents '%s' and '%s'): each role may run at most once per instance",
				agent.Role, existing, agentName)
		}
		rolesSeen[agent.Role] = agentName
	}

	return nil
}

// Validate performs validation on the tracker section
func (t *TrackerConfig) Validate() error {
	if t.Provider != "github" {
		return fmt.Errorf("tracker: unsupported provider: %s (expected: github)", t.Provider)
	}
	if t.Owner == "" {
		return fmt.Errorf("tracker: owner is required")
	}
	if t.Repo == "" {
		return fmt.Errorf("tracker: repo is required")
	}
	if t.Token == "" {
		return fmt.Errorf("tracker: token is required")
	}
	if t.BaseBranch == "" {
		t.BaseBranch = "main"
	}
	return nil
}

// Validate performs validation on the bus section
func (b *BusConfig) Validate() error {
	if b.RedisAddr == "" {
		b.RedisAddr = "localhost:6379"
	}
	return nil
}

// Validate performs validation on the llm section
func (l *LLMConfig) Validate() error {
	if l.Provider != "openai" && l.Provider != "anthropic" {
		return fmt.Errorf("llm: invalid provider: %s (must be 'openai' or 'anthropic')", l.Provider)
	}
	if l.APIKey == "" {
		return fmt.Errorf("llm: api_key is required")
	}
	return nil
}

// Validate performs validation on a single agent configuration
func (a *Agent) Validate(name string) error {
	// Required: role
	if a.Role == "" {
		return fmt.Errorf("agent '%s': role is required", name)
	}
	if a.Role != "requirements" && a.Role != "frontend" && a.Role != "backend" && a.Role != "qa" {
		return fmt.Errorf("agent '%s': invalid role: %s (must be 'requirements', 'frontend', 'backend', or 'qa')", name, a.Role)
	}

	if a.PollInterval != "" {
		d, err := time.ParseDuration(a.PollInterval)
		if err != nil {
			return fmt.Errorf("agent '%s': invalid poll_interval: %s", name, a.PollInterval)
		}
		if d <= 0 {
			return fmt.Errorf("agent '%s': poll_interval must be positive, got %s", name, a.PollInterval)
		}
	}

	return nil
}

// envRef matches ${NAME} references in the raw config text.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references with the environment variable's
// value. Unset variables expand to the empty string, which the section
// validators then reject with a field-specific message.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads and validates warren.yml from the specified path
func Load(path string) (*WarrenConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config WarrenConfig
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
