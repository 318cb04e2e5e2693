package research

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/report"
	"github.com/ccastromar/veritas/internal/tools"
)

// BraveTool is the tool definition name the Brave researcher executes.
const BraveTool = "brave.web_search"

// BraveResearcher runs a web search through the brave.web_search tool.
type BraveResearcher struct {
	Tool    config.Tool
	BaseURL string
	APIKey  string
	Count   int
	HTTP    *http.Client
}

var _ Researcher = (*BraveResearcher)(nil)

func (b *BraveResearcher) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *BraveResearcher) Research(ctx context.Context, query string) (Result, error) {
	if b.APIKey == "" || b.Tool.URL == "" {
		return Result{}, ErrNotConfigured
	}
	count := b.Count
	if count <= 0 {
		count = 5
	}
	params := map[string]string{
		"BaseURL": strings.TrimRight(b.BaseURL, "/"),
		"APIKey":  b.APIKey,
		"Query":   query,
		"Count":   strconv.Itoa(count),
	}

	var resp braveResponse
	if err := tools.Execute(ctx, b.HTTP, b.Tool, params, &resp); err != nil {
		return Result{}, fmt.Errorf("brave search: %w", err)
	}

	lines := make([]string, 0, len(resp.Web.Results))
	sources := make([]report.Source, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		lines = append(lines, r.Title+": "+r.Description)
		sources = append(sources, report.Source{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return Result{Answer: strings.Join(lines, "\n"), Sources: sources, Researcher: b.Name()}, nil
}
