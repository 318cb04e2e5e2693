// Package client talks to a running Veritas server. The CLI uses it to submit
// documents and follow their progress.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ccastromar/veritas/internal/agent"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/report"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("veritas: status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Dialer:  websocket.DefaultDialer,
	}
}

type SubmitRequest struct {
	ProjectName  string `json:"projectName,omitempty"`
	DocumentName string `json:"documentName,omitempty"`
	DocumentText string `json:"documentText"`
}

type Accepted struct {
	JobID   string      `json:"jobId"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.APIKey != "" {
		h.Set("X-API-Key", c.APIKey)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header = c.header()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(b))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Submit starts a verification job.
func (c *Client) Submit(ctx context.Context, r SubmitRequest) (Accepted, error) {
	var out Accepted
	err := c.do(ctx, http.MethodPost, "/api/ingest", r, &out)
	return out, err
}

func (c *Client) Job(ctx context.Context, id string) (jobs.View, error) {
	var out jobs.View
	err := c.do(ctx, http.MethodGet, "/api/job/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Cancel(ctx context.Context, id string) (jobs.View, error) {
	var out jobs.View
	err := c.do(ctx, http.MethodDelete, "/api/job/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Report(ctx context.Context, id string) (report.Report, error) {
	var out report.Report
	err := c.do(ctx, http.MethodGet, "/api/report/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Watch follows a job over the websocket stream and calls fn for every frame.
// It returns the final PIPELINE_DONE frame.
func (c *Client) Watch(ctx context.Context, id string, fn func(agent.StreamFrame)) (agent.StreamFrame, error) {
	u, err := c.wsURL("/api/ws/" + url.PathEscape(id))
	if err != nil {
		return agent.StreamFrame{}, err
	}
	conn, resp, err := c.Dialer.DialContext(ctx, u, c.header())
	if err != nil {
		if resp != nil {
			return agent.StreamFrame{}, &APIError{Status: resp.StatusCode, Message: "websocket handshake failed"}
		}
		return agent.StreamFrame{}, fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var f agent.StreamFrame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return agent.StreamFrame{}, ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return agent.StreamFrame{}, fmt.Errorf("stream closed before the job finished: %w", err)
			}
			return agent.StreamFrame{}, fmt.Errorf("reading stream: %w", err)
		}
		if fn != nil {
			fn(f)
		}
		if f.Event == "PIPELINE_DONE" {
			return f, nil
		}
	}
}
