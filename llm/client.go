// Package llm is the gateway to an OpenAI-compatible chat completions
// service (Groq, OpenAI, OpenRouter or a self-hosted endpoint).
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Known providers and their API base URLs.
const (
	ProviderGroq       = "groq"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderCustom     = "custom"
)

var providerURLs = map[string]string{
	ProviderGroq:       "https://api.groq.com/openai/v1",
	ProviderOpenAI:     "https://api.openai.com/v1",
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
}

// BaseURLFor returns the API base URL for provider. A non-empty override
// always wins; the custom provider requires one.
func BaseURLFor(provider, override string) (string, error) {
	if override != "" {
		return strings.TrimRight(override, "/"), nil
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if u, ok := providerURLs[provider]; ok {
		return u, nil
	}
	if provider == ProviderCustom {
		return "", fmt.Errorf("provider %q requires a base url", provider)
	}
	return "", fmt.Errorf("unknown provider %q", provider)
}

// KnownProvider reports whether p is a supported provider name.
func KnownProvider(p string) bool {
	p = strings.ToLower(strings.TrimSpace(p))
	_, ok := providerURLs[p]
	return ok || p == ProviderCustom
}

// Request is one stateless completion call.
type Request struct {
	BaseURL     string
	APIKey      string
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	// JSON asks the service for a single JSON object response.
	JSON bool
}

// Client performs completion calls. The zero value is not usable; use NewClient.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a client using httpClient (a 60s-timeout client when nil).
// Callers still bound each call with a context deadline.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// Complete sends the system and user prompts and returns the first choice's
// content. Failures are returned as *Error.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if req.APIKey == "" {
		return "", &Error{Kind: KindConfig, Err: errors.New("api key not configured")}
	}
	if req.BaseURL == "" || req.Model == "" {
		return "", &Error{Kind: KindConfig, Err: errors.New("base url and model are required")}
	}
	cfg := openai.DefaultConfig(req.APIKey)
	cfg.BaseURL = strings.TrimRight(req.BaseURL, "/")
	cfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(cfg)

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	// go-openai omits a zero temperature; the smallest float32 is sent as 0.
	if chatReq.Temperature == 0 {
		chatReq.Temperature = math.SmallestNonzeroFloat32
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindEmpty, Err: ErrEmptyCompletion}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &Error{Kind: KindEmpty, Err: ErrEmptyCompletion}
	}
	return content, nil
}
