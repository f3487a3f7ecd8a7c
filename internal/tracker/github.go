package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// maxAttempts bounds the retry budget for one logical API call.
	maxAttempts = 3

	// requestTimeout caps a single HTTP round trip.
	requestTimeout = 30 * time.Second
)

// retryBaseDelay is the linear backoff unit between attempts. Package-level
// so tests can shrink it.
var retryBaseDelay = time.Second

// GitHub is the GitHub REST v3 implementation of Tracker. All calls retry up
// to maxAttempts on network errors, 429 and 5xx responses with linear
// backoff; beyond that the failure surfaces as an *APIError and the item
// stays in its current status for the next poll cycle to retry.
type GitHub struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	token      string
}

// NewGitHub creates a GitHub tracker client. apiURL defaults to the public
// API when empty.
func NewGitHub(apiURL, owner, repo, token string) *GitHub {
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	return &GitHub{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(apiURL, "/"),
		owner:      owner,
		repo:       repo,
		token:      token,
	}
}

// issueJSON mirrors the subset of the GitHub issue resource Warren reads.
type issueJSON struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	HTMLURL   string    `json:"html_url"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

func (j *issueJSON) toItem() Item {
	labels := make([]string, 0, len(j.Labels))
	for _, l := range j.Labels {
		labels = append(labels, l.Name)
	}
	return Item{
		Number:    j.Number,
		Title:     j.Title,
		Body:      j.Body,
		State:     j.State,
		Labels:    labels,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		URL:       j.HTMLURL,
	}
}

func (g *GitHub) repoPath(format string, args ...any) string {
	return fmt.Sprintf("/repos/%s/%s", g.owner, g.repo) + fmt.Sprintf(format, args...)
}

// do performs one logical API call with retries. A nil out skips response
// decoding. Responses with status 429 or >= 500 and transport errors are
// retried; other non-2xx responses fail immediately as *APIError.
func (g *GitHub) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * retryBaseDelay):
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("Authorization", "Bearer "+g.token)
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("tracker request failed: %w", err)
			log.Printf("[WARN] Tracker %s %s attempt %d/%d failed: %v", method, path, attempt, maxAttempts, err)
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read tracker response: %w", readErr)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: truncateBody(data)}
			log.Printf("[WARN] Tracker %s %s attempt %d/%d: status %d", method, path, attempt, maxAttempts, resp.StatusCode)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{StatusCode: resp.StatusCode, Message: truncateBody(data)}
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode tracker response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("tracker request exhausted %d attempts: %w", maxAttempts, lastErr)
}

func truncateBody(data []byte) string {
	const limit = 200
	s := string(data)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// ListItems returns open/closed issues carrying all of the given labels.
// Pull requests (which GitHub reports on the issues endpoint) are filtered
// out.
func (g *GitHub) ListItems(ctx context.Context, state string, labels []string) ([]Item, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if len(labels) > 0 {
		q.Set("labels", strings.Join(labels, ","))
	}

	var raw []issueJSON
	if err := g.do(ctx, http.MethodGet, g.repoPath("/issues")+"?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(raw))
	for i := range raw {
		if raw[i].PullRequest != nil {
			continue
		}
		items = append(items, raw[i].toItem())
	}
	return items, nil
}

func (g *GitHub) GetItem(ctx context.Context, number int) (*Item, error) {
	var raw issueJSON
	if err := g.do(ctx, http.MethodGet, g.repoPath("/issues/%d", number), nil, &raw); err != nil {
		return nil, err
	}
	item := raw.toItem()
	return &item, nil
}

func (g *GitHub) ItemLabels(ctx context.Context, number int) ([]string, error) {
	item, err := g.GetItem(ctx, number)
	if err != nil {
		return nil, err
	}
	return item.Labels, nil
}

func (g *GitHub) AddLabels(ctx context.Context, number int, labels []string) error {
	body := map[string][]string{"labels": labels}
	return g.do(ctx, http.MethodPost, g.repoPath("/issues/%d/labels", number), body, nil)
}

// RemoveLabel removes one label. GitHub answers 404 when the label is not on
// the issue; that is reported as (false, nil), not an error.
func (g *GitHub) RemoveLabel(ctx context.Context, number int, label string) (bool, error) {
	path := g.repoPath("/issues/%d/labels/%s", number, url.PathEscape(label))
	if err := g.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *GitHub) AddComment(ctx context.Context, number int, body string) error {
	payload := map[string]string{"body": body}
	return g.do(ctx, http.MethodPost, g.repoPath("/issues/%d/comments", number), payload, nil)
}

func (g *GitHub) ListComments(ctx context.Context, number int) ([]Comment, error) {
	var raw []struct {
		ID        int64     `json:"id"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"created_at"`
		User      struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := g.do(ctx, http.MethodGet, g.repoPath("/issues/%d/comments", number), nil, &raw); err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(raw))
	for _, c := range raw {
		comments = append(comments, Comment{
			ID:        c.ID,
			Author:    c.User.Login,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		})
	}
	return comments, nil
}

func (g *GitHub) UpdateItem(ctx context.Context, number int, update ItemUpdate) error {
	body := map[string]string{}
	if update.Title != nil {
		body["title"] = *update.Title
	}
	if update.Body != nil {
		body["body"] = *update.Body
	}
	if update.State != nil {
		body["state"] = *update.State
	}
	if len(body) == 0 {
		return nil
	}
	return g.do(ctx, http.MethodPatch, g.repoPath("/issues/%d", number), body, nil)
}

// CreateBranch resolves the head SHA of fromBranch and creates a ref for the
// new branch at that commit.
func (g *GitHub) CreateBranch(ctx context.Context, name, fromBranch string) error {
	var branch struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := g.do(ctx, http.MethodGet, g.repoPath("/branches/%s", url.PathEscape(fromBranch)), nil, &branch); err != nil {
		return fmt.Errorf("failed to resolve source branch %q: %w", fromBranch, err)
	}

	body := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": branch.Commit.SHA,
	}
	return g.do(ctx, http.MethodPost, g.repoPath("/git/refs"), body, nil)
}

func (g *GitHub) BranchExists(ctx context.Context, name string) (bool, error) {
	err := g.do(ctx, http.MethodGet, g.repoPath("/branches/%s", url.PathEscape(name)), nil, nil)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *GitHub) WriteFile(ctx context.Context, path, content, message, branch, previousSHA string) error {
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	if previousSHA != "" {
		body["sha"] = previousSHA
	}
	return g.do(ctx, http.MethodPut, g.repoPath("/contents/%s", path), body, nil)
}

func (g *GitHub) ReadFile(ctx context.Context, path, branch string) (string, error) {
	var raw struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	endpoint := g.repoPath("/contents/%s", path)
	if branch != "" {
		endpoint += "?ref=" + url.QueryEscape(branch)
	}
	if err := g.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return "", err
	}

	// GitHub wraps base64 content at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode file content for %s: %w", path, err)
	}
	return string(decoded), nil
}

func (g *GitHub) OpenPullRequest(ctx context.Context, title, body, head, base string) (*PullRequest, error) {
	payload := map[string]string{
		"title": title,
		"body":  body,
		"head":  head,
		"base":  base,
	}
	var raw struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := g.do(ctx, http.MethodPost, g.repoPath("/pulls"), payload, &raw); err != nil {
		return nil, err
	}
	return &PullRequest{Number: raw.Number, URL: raw.HTMLURL}, nil
}
