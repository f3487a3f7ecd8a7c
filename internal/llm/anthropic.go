package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"

// anthropic implements Provider against the text completion API.
type anthropic struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

func newAnthropic(opts Options) *anthropic {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	model := opts.Model
	if model == "" {
		model = "claude-2"
	}
	return &anthropic{
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

type completionResponse struct {
	Completion string `json:"completion"`
	Model      string `json:"model"`
}

func (a *anthropic) complete(ctx context.Context, prompt string) (*Response, error) {
	body := map[string]any{
		"model":                a.model,
		"prompt":               fmt.Sprintf("\n\nHuman: %s\n\nAssistant:", prompt),
		"max_tokens_to_sample": a.maxTokens,
		"temperature":          a.temperature,
	}
	headers := map[string]string{
		"X-API-Key":         a.apiKey,
		"Anthropic-Version": "2023-06-01",
	}

	var out completionResponse
	if err := postJSON(ctx, a.httpClient, a.baseURL+"/v1/complete", headers, body, &out); err != nil {
		log.Printf("[ERROR] Anthropic generation failed: %v", err)
		return nil, err
	}

	return &Response{Content: out.Completion, Model: out.Model}, nil
}

func (a *anthropic) Generate(ctx context.Context, prompt string) (*Response, error) {
	return a.complete(ctx, prompt)
}

func (a *anthropic) GenerateCode(ctx context.Context, prompt, repoContext string) (*Response, error) {
	full := prompt
	if repoContext != "" {
		full = "Repository context:\n" + repoContext + "\n\n" + prompt
	}
	full += "\n\nGenerate clean, well-documented, production-ready code."

	resp, err := a.complete(ctx, full)
	if err != nil {
		return nil, err
	}
	resp.Content = stripCodeFence(resp.Content)
	return resp, nil
}
