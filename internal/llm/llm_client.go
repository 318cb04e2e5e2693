package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by providers that lack credentials.
var ErrNotConfigured = errors.New("llm provider not configured")

// ChatRequest is one system+user exchange with sampling settings.
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

type LLMClient interface {
	Ping(ctx context.Context) error
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

func (r ChatRequest) messages() []map[string]string {
	msgs := make([]map[string]string, 0, 2)
	if r.System != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": r.System})
	}
	return append(msgs, map[string]string{"role": "user", "content": r.User})
}
