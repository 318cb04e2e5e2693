package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ccastromar/veritas/internal/metrics"
	"golang.org/x/time/rate"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// Veritas points it at OpenRouter for both the Boss and the research grunt.
type OpenAIClient struct {
	BaseURL  string
	APIKey   string
	Model    string
	Provider string
	HTTP     *http.Client
	Timeout  time.Duration
	Limiter  *rate.Limiter
}

// Compile-time interface conformance
var _ LLMClient = (*OpenAIClient)(nil)

func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}

	return &OpenAIClient{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Model:    model,
		Provider: "openrouter",
		HTTP: &http.Client{
			Timeout: 120 * time.Second,
		},
		Timeout: 90 * time.Second,
	}
}

func (c *OpenAIClient) httpClient(to time.Duration) *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: to}
}

func (c *OpenAIClient) Ping(ctx context.Context) error {
	if c.APIKey == "" {
		return fmt.Errorf("%s: %w", c.Provider, ErrNotConfigured)
	}

	to := c.Timeout
	if to <= 0 || to > 5*time.Second {
		to = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	url := strings.TrimRight(c.BaseURL, "/") + "/models"
	resp, err := retryHTTP(ctx, 3, 100*time.Millisecond, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		return c.httpClient(to).Do(req)
	})
	if err != nil {
		metrics.LLMPings.WithLabelValues(c.Provider, "error").Inc()
		return fmt.Errorf("%s ping failed: %w", c.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		metrics.LLMPings.WithLabelValues(c.Provider, "error").Inc()
		return fmt.Errorf("%s ping bad status: %d, body: %s", c.Provider, resp.StatusCode, string(b))
	}

	metrics.LLMPings.WithLabelValues(c.Provider, "ok").Inc()
	return nil
}

// Chat performs a non-streaming chat completion.
func (c *OpenAIClient) Chat(ctx context.Context, cr ChatRequest) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("%s: %w", c.Provider, ErrNotConfigured)
	}

	payload := map[string]any{
		"model":       c.Model,
		"messages":    cr.messages(),
		"temperature": cr.Temperature,
	}
	if cr.MaxTokens > 0 {
		payload["max_tokens"] = cr.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	to := c.Timeout
	if to <= 0 {
		to = 90 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	fail := func(err error) (string, error) {
		metrics.LLMChats.WithLabelValues(c.Provider, c.Model, "error").Inc()
		return "", err
	}

	start := time.Now()
	resp, err := retryHTTP(ctx, 3, 200*time.Millisecond, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return c.httpClient(to).Do(req)
	})
	if err != nil {
		return fail(fmt.Errorf("%s chat: %w", c.Provider, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fail(fmt.Errorf("%s chat failed: status %d, body: %s", c.Provider, resp.StatusCode, string(b)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fail(fmt.Errorf("%s chat: decoding response: %w", c.Provider, err))
	}

	if len(result.Choices) == 0 {
		return fail(fmt.Errorf("%s: empty response", c.Provider))
	}

	metrics.LLMChats.WithLabelValues(c.Provider, c.Model, "ok").Inc()
	metrics.LLMChatDur.WithLabelValues(c.Provider, "ok").Observe(time.Since(start).Seconds())
	return result.Choices[0].Message.Content, nil
}
