package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openAI implements Provider against the chat completions API.
type openAI struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

func newOpenAI(opts Options) *openAI {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4"
	}
	return &openAI{
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *openAI) complete(ctx context.Context, messages []chatMessage) (*Response, error) {
	body := map[string]any{
		"model":       o.model,
		"messages":    messages,
		"temperature": o.temperature,
		"max_tokens":  o.maxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	var out chatResponse
	if err := postJSON(ctx, o.httpClient, o.baseURL+"/chat/completions", headers, body, &out); err != nil {
		log.Printf("[ERROR] OpenAI generation failed: %v", err)
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: response contained no choices", ErrGenerationFailed)
	}

	return &Response{
		Content:    out.Choices[0].Message.Content,
		Model:      out.Model,
		TokensUsed: out.Usage.TotalTokens,
	}, nil
}

func (o *openAI) Generate(ctx context.Context, prompt string) (*Response, error) {
	return o.complete(ctx, []chatMessage{
		{Role: "user", Content: prompt},
	})
}

func (o *openAI) GenerateCode(ctx context.Context, prompt, repoContext string) (*Response, error) {
	system := "You are an expert software developer. Generate clean, well-documented, production-ready code."
	if repoContext != "" {
		system += "\n\nRepository context:\n" + repoContext
	}

	resp, err := o.complete(ctx, []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}
	resp.Content = stripCodeFence(resp.Content)
	return resp, nil
}
