package research

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/llm"
	"github.com/ccastromar/veritas/internal/report"
	"github.com/ccastromar/veritas/internal/tools"
)

type fakeLLM struct {
	answer string
	err    error
	got    llm.ChatRequest
}

func (f *fakeLLM) Ping(context.Context) error { return nil }

func (f *fakeLLM) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	f.got = req
	return f.answer, f.err
}

type stubResearcher struct {
	name  string
	res   Result
	err   error
	calls int
}

func (s *stubResearcher) Name() string { return s.name }

func (s *stubResearcher) Research(context.Context, string) (Result, error) {
	s.calls++
	return s.res, s.err
}

var braveTool = config.Tool{
	Name:   BraveTool,
	Type:   "http",
	Method: "GET",
	URL:    "{{ .BaseURL }}/res/v1/web/search?q={{ .Query | urlquery }}&count={{ .Count }}",
	Headers: map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": "{{ .APIKey }}",
	},
	TimeoutMs: 2000,
}

func TestLLMResearcher_CitedSources(t *testing.T) {
	f := &fakeLLM{answer: "Revenue was $4.2M (https://sec.gov/filing/123), see also " +
		"https://www.reuters.com/a and http://x.io/1 http://x.io/2 http://x.io/3 http://x.io/4"}
	r := &LLMResearcher{Client: f, Prompt: config.Prompt{System: "analyst", User: "{{ .Query }}"}}

	res, err := r.Research(context.Background(), "Verify: revenue")
	require.NoError(t, err)
	require.Equal(t, "Verify: revenue", f.got.User)
	require.Equal(t, "llm", res.Researcher)
	require.Len(t, res.Sources, 5)
	require.Equal(t, report.Source{Title: "sec.gov", URL: "https://sec.gov/filing/123"}, res.Sources[0])
	require.Equal(t, "www.reuters.com", res.Sources[1].Title)
}

func TestLLMResearcher_NotConfigured(t *testing.T) {
	r := &LLMResearcher{Client: &fakeLLM{err: llm.ErrNotConfigured}}
	_, err := r.Research(context.Background(), "q")
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = (&LLMResearcher{}).Research(context.Background(), "q")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestBraveResearcher(t *testing.T) {
	var gotToken, gotQuery, gotCount string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"Acme 10-K","url":"https://sec.gov/acme","description":"Revenue of $4.2M"},
			{"title":"News","url":"https://news.example/acme","description":"Acme grew 20%"}]}}`))
	}))
	defer ts.Close()

	b := &BraveResearcher{Tool: braveTool, BaseURL: ts.URL + "/", APIKey: "brv"}
	res, err := b.Research(context.Background(), "acme revenue & growth")
	require.NoError(t, err)
	require.Equal(t, "brv", gotToken)
	require.Equal(t, "acme revenue & growth", gotQuery)
	require.Equal(t, "5", gotCount)
	require.Equal(t, "Acme 10-K: Revenue of $4.2M\nNews: Acme grew 20%", res.Answer)
	require.Len(t, res.Sources, 2)
	require.Equal(t, "Revenue of $4.2M", res.Sources[0].Snippet)
}

func TestBraveResearcher_Errors(t *testing.T) {
	_, err := (&BraveResearcher{Tool: braveTool}).Research(context.Background(), "q")
	require.ErrorIs(t, err, ErrNotConfigured)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err = (&BraveResearcher{Tool: braveTool, BaseURL: ts.URL, APIKey: "k"}).Research(context.Background(), "q")
	var se *tools.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusTooManyRequests, se.Status)
}

func TestChain_FallsBack(t *testing.T) {
	first := &stubResearcher{name: "llm", err: errors.New("502")}
	second := &stubResearcher{name: "brave", res: Result{Answer: "found", Researcher: "brave"}}

	c, err := NewChain([]string{"llm", "brave"}, map[string]Researcher{"llm": first, "brave": second}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"llm", "brave"}, c.Names())

	res, err := c.Research(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "found", res.Answer)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
}

func TestChain_StopsAtFirstAnswer(t *testing.T) {
	first := &stubResearcher{name: "llm", res: Result{Answer: "a"}}
	second := &stubResearcher{name: "brave"}
	c, err := NewChain([]string{"llm", "brave"}, map[string]Researcher{"llm": first, "brave": second}, nil)
	require.NoError(t, err)

	_, err = c.Research(context.Background(), "q")
	require.NoError(t, err)
	require.Zero(t, second.calls)
}

func TestChain_NothingConfigured(t *testing.T) {
	c, err := NewChain([]string{"llm", "brave"}, map[string]Researcher{
		"llm":   &stubResearcher{name: "llm", err: ErrNotConfigured},
		"brave": &stubResearcher{name: "brave", err: ErrNotConfigured},
	}, nil)
	require.NoError(t, err)

	res, err := c.Research(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, NoDataAnswer, res.Answer)
	require.Empty(t, res.Sources)
}

func TestChain_UnknownResearcher(t *testing.T) {
	_, err := NewChain([]string{"bing"}, map[string]Researcher{}, nil)
	require.ErrorContains(t, err, "bing")
}

func TestChain_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, err := NewChain([]string{"llm"}, map[string]Researcher{
		"llm": &stubResearcher{name: "llm", err: context.Canceled},
	}, nil)
	require.NoError(t, err)

	_, err = c.Research(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
}
