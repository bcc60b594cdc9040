// internal/hashtag/llm.go
package hashtag

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

type LLMConfig struct {
	APIURL      string
	APIKey      string
	Model       string
	MaxHashtags int
}

// LLMGenerator asks an OpenAI-compatible chat completions endpoint for hashtags.
type LLMGenerator struct {
	client      *http.Client
	apiKey      string
	apiURL      string
	model       string
	maxHashtags int
}

func NewLLMGenerator(cfg LLMConfig) *LLMGenerator {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	maxHashtags := cfg.MaxHashtags
	if maxHashtags <= 0 {
		maxHashtags = 8
	}
	return &LLMGenerator{
		client:      &http.Client{Timeout: 60 * time.Second},
		apiKey:      cfg.APIKey,
		apiURL:      apiURL,
		model:       cfg.Model,
		maxHashtags: maxHashtags,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *LLMGenerator) prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest up to %d social media hashtags for this article.\n", g.maxHashtags)
	fmt.Fprintf(&b, "Title: %s\n", req.Title)
	if req.Excerpt != "" {
		fmt.Fprintf(&b, "Excerpt: %s\n", req.Excerpt)
	}
	if req.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", req.Category)
	}
	if len(req.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(req.Tags, ", "))
	}
	b.WriteString("Answer with the hashtags only, separated by spaces.")
	return b.String()
}

func (g *LLMGenerator) Suggest(ctx context.Context, req Request) ([]string, error) {
	if g.model == "" {
		return nil, errors.New("hashtag: model is required")
	}

	payload, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You write concise, relevant hashtags for marketing posts."},
			{Role: "user", Content: g.prompt(req)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("hashtag: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("hashtag: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("hashtag: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("hashtag: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("hashtag: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("hashtag: empty response")
	}

	tags := Normalize(Split(out.Choices[0].Message.Content), g.maxHashtags)
	if len(tags) == 0 {
		return nil, errors.New("hashtag: no hashtags in response")
	}
	return tags, nil
}
