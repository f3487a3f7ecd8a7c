// Package llm provides the text/code generation collaborator used by agent
// roles. Backends differ in API shape (chat-completion style vs. completion
// style); each is a Provider implementation selected once at construction by
// the factory, never by runtime type inspection.
//
// Generation failures are ordinary errors. Roles abort the current cycle on
// failure without changing the item's status, so the next poll retries.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrGenerationFailed wraps every provider-side failure so roles can treat
// all of them uniformly: abort the cycle, leave status untouched, retry on
// the next poll.
var ErrGenerationFailed = errors.New("generation failed")

// Response is the result of one generation call.
type Response struct {
	Content    string
	Model      string
	TokensUsed int
}

// Provider is the capability interface implemented per backend.
type Provider interface {
	// Generate produces free-form text for a prompt.
	Generate(ctx context.Context, prompt string) (*Response, error)

	// GenerateCode produces code for a task prompt given repository context.
	// Markdown code fences are stripped from the result.
	GenerateCode(ctx context.Context, prompt, context string) (*Response, error)
}

// Options configures the generation client.
type Options struct {
	Provider    string  // "openai" or "anthropic"
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // override for tests; empty selects the provider default
}

// Client wraps a Provider with the higher-level prompt helpers the
// requirements role needs.
type Client struct {
	provider Provider
}

// New builds a client for the configured provider. Unknown provider names
// are an error rather than a silent default: picking a backend is a
// deployment decision, not something to guess at runtime.
func New(opts Options) (*Client, error) {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4000
	}

	var p Provider
	switch strings.ToLower(opts.Provider) {
	case "openai":
		p = newOpenAI(opts)
	case "anthropic":
		p = newAnthropic(opts)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (expected openai or anthropic)", opts.Provider)
	}

	return &Client{provider: p}, nil
}

// NewWithProvider wires a client around an existing provider. Used by tests.
func NewWithProvider(p Provider) *Client {
	return &Client{provider: p}
}

// Generate produces free-form text for a prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (*Response, error) {
	return c.provider.Generate(ctx, prompt)
}

// GenerateCode produces code for a task prompt given repository context.
func (c *Client) GenerateCode(ctx context.Context, prompt, repoContext string) (*Response, error) {
	return c.provider.GenerateCode(ctx, prompt, repoContext)
}

// Analysis is the structured result of analyzing a requirement.
type Analysis struct {
	FunctionalRequirements []string
	Dependencies           []string
	SuggestedApproach      string
	Risks                  []string
	NeedsClarification     bool
	Raw                    string
}

const analyzePromptTemplate = `Analyze the following software requirement and extract:
1. Functional requirements
2. Non-functional requirements
3. Dependencies
4. Suggested implementation approach
5. Potential risks or clarifications needed

Requirement:
%s

Provide your analysis in JSON format with keys "functional_requirements",
"dependencies", "suggested_implementation_approach", "potential_risks",
"needs_clarification":`

// AnalyzeRequirement asks the model to analyze an item body and parses the
// JSON object out of the reply. A reply without parseable JSON degrades to a
// raw analysis with a heuristic clarification flag rather than an error.
func (c *Client) AnalyzeRequirement(ctx context.Context, body string) (*Analysis, error) {
	resp, err := c.provider.Generate(ctx, fmt.Sprintf(analyzePromptTemplate, body))
	if err != nil {
		return nil, err
	}

	if a, ok := parseAnalysisJSON(resp.Content); ok {
		a.Raw = resp.Content
		return a, nil
	}

	lower := strings.ToLower(resp.Content)
	return &Analysis{
		Raw:                resp.Content,
		NeedsClarification: strings.Contains(resp.Content, "?") || strings.Contains(lower, "unclear"),
	}, nil
}

func parseAnalysisJSON(content string) (*Analysis, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, false
	}

	var raw struct {
		FunctionalRequirements []string `json:"functional_requirements"`
		Dependencies           []string `json:"dependencies"`
		SuggestedApproach      string   `json:"suggested_implementation_approach"`
		Risks                  []string `json:"potential_risks"`
		NeedsClarification     bool     `json:"needs_clarification"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, false
	}

	return &Analysis{
		FunctionalRequirements: raw.FunctionalRequirements,
		Dependencies:           raw.Dependencies,
		SuggestedApproach:      raw.SuggestedApproach,
		Risks:                  raw.Risks,
		NeedsClarification:     raw.NeedsClarification,
	}, true
}

const clarifyPromptTemplate = `The following software requirement is ambiguous or incomplete.
Generate a list of clarifying questions to help understand the requirement better.

Requirement:
%s

List 3-5 specific questions that would help clarify this requirement.`

// ClarificationQuestions asks the model for clarifying questions and parses
// numbered or bulleted lines from the reply. Never returns an empty list: a
// failed parse degrades to one generic question.
func (c *Client) ClarificationQuestions(ctx context.Context, body string) ([]string, error) {
	resp, err := c.provider.Generate(ctx, fmt.Sprintf(clarifyPromptTemplate, body))
	if err != nil {
		return nil, err
	}

	var questions []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case line[0] >= '0' && line[0] <= '9':
			if _, rest, found := strings.Cut(line, "."); found {
				line = strings.TrimSpace(rest)
			}
			questions = append(questions, line)
		case strings.HasPrefix(line, "-"):
			questions = append(questions, strings.TrimSpace(strings.TrimPrefix(line, "-")))
		}
	}

	if len(questions) == 0 {
		questions = []string{"Could you provide more details about this requirement?"}
	}
	return questions, nil
}

// stripCodeFence extracts the first markdown code block from a model reply,
// dropping the language identifier line. Replies without fences pass through
// unchanged.
func stripCodeFence(content string) string {
	if !strings.Contains(content, "```") {
		return content
	}
	parts := strings.Split(content, "```")
	if len(parts) < 2 {
		return content
	}
	block := parts[1]
	if idx := strings.Index(block, "\n"); idx != -1 {
		block = block[idx+1:]
	}
	return strings.TrimRight(block, "\n")
}

// postJSON performs one POST with bounded retries on transport errors, 429
// and 5xx. Shared by both providers.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * retryBaseDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, truncate(string(data), 200))
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", ErrGenerationFailed, err)
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

// retryBaseDelay is shrunk by tests.
var retryBaseDelay = time.Second

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
