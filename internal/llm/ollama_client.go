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

	"github.com/ccastromar/veritas/internal/metrics"
)

// OllamaClient is the local Boss used when LLM_PROVIDER=ollama.
type OllamaClient struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

var _ LLMClient = (*OllamaClient)(nil)

func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		Timeout: 3 * time.Minute,
	}
}

func (c *OllamaClient) Chat(ctx context.Context, cr ChatRequest) (string, error) {
	options := map[string]any{"temperature": cr.Temperature}
	if cr.MaxTokens > 0 {
		options["num_predict"] = cr.MaxTokens
	}
	payload := map[string]any{
		"model":    c.Model,
		"messages": cr.messages(),
		"stream":   true,
		"options":  options,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	to := c.Timeout
	if to <= 0 {
		to = 3 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: to}
	}

	fail := func(err error) (string, error) {
		metrics.LLMChats.WithLabelValues("ollama", c.Model, "error").Inc()
		return "", err
	}

	start := time.Now()
	resp, err := retryHTTP(ctx, 3, 100*time.Millisecond, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return httpClient.Do(req)
	})
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fail(fmt.Errorf("ollama chat failed: status %d, body: %s", resp.StatusCode, string(b)))
	}

	dec := json.NewDecoder(resp.Body)
	var out strings.Builder

	for {
		var chunk struct {
			Message *struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			Done bool `json:"done"`
		}

		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fail(fmt.Errorf("ollama chat: decoding stream: %w", err))
		}

		if chunk.Message != nil {
			out.WriteString(chunk.Message.Content)
		}

		if chunk.Done {
			break
		}
	}

	metrics.LLMChats.WithLabelValues("ollama", c.Model, "ok").Inc()
	metrics.LLMChatDur.WithLabelValues("ollama", "ok").Observe(time.Since(start).Seconds())
	return out.String(), nil
}

// Ping checks if Ollama is reachable and responding.
func (c *OllamaClient) Ping(ctx context.Context) error {
	// Ollama health: GET /api/tags
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Second}
	}

	resp, err := retryHTTP(ctx, 3, 50*time.Millisecond, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
		if err != nil {
			return nil, err
		}
		return httpClient.Do(req)
	})
	if err != nil {
		metrics.LLMPings.WithLabelValues("ollama", "error").Inc()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.LLMPings.WithLabelValues("ollama", "error").Inc()
		return fmt.Errorf("llm ping failed: status %d", resp.StatusCode)
	}
	metrics.LLMPings.WithLabelValues("ollama", "ok").Inc()
	return nil
}
