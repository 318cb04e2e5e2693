package research

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/llm"
	"github.com/ccastromar/veritas/internal/report"
)

const maxCitedSources = 5

var citationRe = regexp.MustCompile(`https?://[^\s)]+`)

// LLMResearcher asks a search-grounded model (the grunt model) for the value
// and turns the URLs it cites into sources.
type LLMResearcher struct {
	Client llm.LLMClient
	Prompt config.Prompt
}

var _ Researcher = (*LLMResearcher)(nil)

func (r *LLMResearcher) Name() string { return "llm" }

func (r *LLMResearcher) Research(ctx context.Context, query string) (Result, error) {
	if r.Client == nil {
		return Result{}, ErrNotConfigured
	}
	req, err := llm.Render(r.Prompt, struct{ Query string }{query})
	if err != nil {
		return Result{}, err
	}
	answer, err := r.Client.Chat(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return Result{}, ErrNotConfigured
		}
		return Result{}, fmt.Errorf("llm grunt: %w", err)
	}
	return Result{Answer: answer, Sources: citedSources(answer), Researcher: r.Name()}, nil
}

// citedSources picks the first few URLs out of free text. The title is the host.
func citedSources(answer string) []report.Source {
	urls := citationRe.FindAllString(answer, maxCitedSources)
	out := make([]report.Source, 0, len(urls))
	for _, u := range urls {
		out = append(out, report.Source{Title: hostOf(u), URL: u})
	}
	return out
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	host, _, _ := strings.Cut(s, "/")
	return host
}
