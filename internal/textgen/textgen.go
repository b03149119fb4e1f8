package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// Request describes one bounded generation call.
type Request struct {
	Model        string // service-side model identifier
	SystemPrompt string
	UserPrompt   string
	MaxUnits     int // cap on output usage units
	Temperature  float64
}

// Usage is the billed unit count reported by the service for one call.
type Usage struct {
	InputUnits  int
	OutputUnits int
}

// Response holds the generated text and actual billed usage.
type Response struct {
	Text  string
	Usage Usage
}

// Client is the interface to the external text-generation service.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// HTTPClient calls an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	client  *http.Client
}

// NewHTTPClient creates a client for the given endpoint. requestsPerMinute
// bounds the outbound call rate; pass 0 to disable pacing.
func NewHTTPClient(baseURL, apiKeyEnv string, timeout time.Duration, requestsPerMinute float64) *HTTPClient {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerMinute/60), 1)
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  os.Getenv(apiKeyEnv),
		limiter: limiter,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsConfigured checks if the API key is set.
func (c *HTTPClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Generate sends one prompt and returns the text plus billed usage units.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("text service API key not configured")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	messages := []map[string]string{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserPrompt})

	body := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  req.MaxUnits,
		"temperature": req.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("text service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("text service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in service response")
	}

	return &Response{
		Text: result.Choices[0].Message.Content,
		Usage: Usage{
			InputUnits:  result.Usage.PromptTokens,
			OutputUnits: result.Usage.CompletionTokens,
		},
	}, nil
}
