package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ccastromar/veritas/internal/config"
)

const maxResponseBytes = 4 << 20

// StatusError is returned when a tool answers with a non-2xx status.
type StatusError struct {
	Tool   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tool %s: status %d: %s", e.Tool, e.Status, e.Body)
}

// Execute renders the tool URL and headers with params, performs the HTTP
// call and decodes the JSON response into out.
func Execute(ctx context.Context, client *http.Client, t config.Tool, params map[string]string, out any) error {
	if t.Type != "" && t.Type != "http" {
		return fmt.Errorf("tool %s: unsupported type %q", t.Name, t.Type)
	}
	url, err := RenderTemplateString(t.URL, params)
	if err != nil {
		return fmt.Errorf("tool %s: url: %w", t.Name, err)
	}
	headers, err := RenderTemplateMap(t.Headers, params)
	if err != nil {
		return fmt.Errorf("tool %s: headers: %w", t.Name, err)
	}

	if t.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	method := strings.ToUpper(t.Method)
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("tool %s: creating request: %w", t.Name, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("tool %s: %w", t.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("tool %s: reading response: %w", t.Name, err)
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Tool: t.Name, Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("tool %s: parsing JSON: %w", t.Name, err)
	}
	return nil
}
