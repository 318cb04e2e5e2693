package agent

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/llm"
	"github.com/ccastromar/veritas/internal/report"
	"github.com/ccastromar/veritas/internal/research"
	"github.com/ccastromar/veritas/internal/store"
)

// fakeBoss answers each Boss prompt by recognising its system prompt.
type fakeBoss struct {
	mu         sync.Mutex
	extract    string
	extractErr error
	assess     func(user string) (string, error)
	summary    string
	summaryErr error
	recs       string
	calls      map[string]int
	extractReq llm.ChatRequest
}

func (f *fakeBoss) Ping(context.Context) error { return nil }

func (f *fakeBoss) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := "unknown"
	switch {
	case strings.Contains(req.System, "senior business analyst"):
		kind = "extract"
	case strings.Contains(req.System, "risk assessor"):
		kind = "assess"
	case strings.Contains(req.System, "consulting partner"):
		kind = "summary"
	case strings.Contains(req.System, "strategic advisor"):
		kind = "recs"
	}
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[kind]++
	f.mu.Unlock()

	switch kind {
	case "extract":
		f.mu.Lock()
		f.extractReq = req
		f.mu.Unlock()
		return f.extract, f.extractErr
	case "assess":
		if f.assess == nil {
			return `{"riskLevel":"unverified","explanation":"no data"}`, nil
		}
		return f.assess(req.User)
	case "summary":
		return f.summary, f.summaryErr
	case "recs":
		return f.recs, nil
	}
	return "", nil
}

func (f *fakeBoss) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

// fakeGrunts returns the same research result for every query.
type fakeGrunts struct {
	mu      sync.Mutex
	res     research.Result
	err     error
	block   bool
	queries []string
}

func (g *fakeGrunts) Research(ctx context.Context, query string) (research.Result, error) {
	g.mu.Lock()
	g.queries = append(g.queries, query)
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return research.Result{}, ctx.Err()
	}
	return g.res, g.err
}

func loadDefinitions(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromDir(filepath.Join("..", "..", "definitions"))
	require.NoError(t, err)
	return cfg
}

type harness struct {
	bus    *bus.Bus
	jobs   *jobs.Registry
	store  *store.Memory
	cfg    *config.Config
	boss   *fakeBoss
	grunts *fakeGrunts
}

// newHarness wires the four pipeline agents on a fresh bus and runs them
// until the test ends.
// Each tweak edits the loaded definitions before the agents are built.
func newHarness(t *testing.T, boss *fakeBoss, grunts *fakeGrunts, tweaks ...func(*config.Config)) *harness {
	t.Helper()
	h := &harness{
		bus:    bus.New(),
		jobs:   jobs.NewRegistry(time.Minute),
		store:  store.NewMemory(),
		cfg:    loadDefinitions(t),
		boss:   boss,
		grunts: grunts,
	}
	for _, tweak := range tweaks {
		tweak(h.cfg)
	}
	agents := map[string]Agent{
		TargetInspector: NewInspector(h.bus, h.jobs, h.cfg.Policy, 2),
		TargetPlanner:   NewPlanner(h.bus, h.cfg, boss, h.jobs, 2),
		TargetVerifier:  NewVerifier(h.bus, h.cfg, boss, grunts, h.jobs, 2),
		TargetAnalyst:   NewAnalyst(h.bus, h.cfg, boss, h.jobs, h.store, 2),
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for name, ag := range agents {
		h.bus.Subscribe(name, ag.Inbox())
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ag.Start(ctx)
		}()
	}
	t.Cleanup(func() {
		h.jobs.CancelAll()
		cancel()
		wg.Wait()
	})
	return h
}

func (h *harness) submit(t *testing.T, text string) string {
	t.Helper()
	job, _ := h.jobs.Create(context.Background(), "Acme", "deck.txt", text)
	require.True(t, h.bus.Send(context.Background(), TargetInspector, bus.Message{
		Type:    MsgNewJob,
		Payload: map[string]any{"id": job.ID},
	}))
	return job.ID
}

func (h *harness) wait(t *testing.T, id string) jobs.Job {
	t.Helper()
	var job jobs.Job
	require.Eventually(t, func() bool {
		j, ok := h.jobs.Get(id)
		job = j
		return ok && j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func eventNames(j jobs.Job) []string {
	out := make([]string, 0, len(j.Events))
	for _, ev := range j.Events {
		out = append(out, ev.Event)
	}
	return out
}

func countEvents(j jobs.Job, name string) int {
	n := 0
	for _, ev := range j.Events {
		if ev.Event == name {
			n++
		}
	}
	return n
}

// requireOrder checks that want appears in names in that relative order.
func requireOrder(t *testing.T, names []string, want ...string) {
	t.Helper()
	i := 0
	for _, n := range names {
		if i < len(want) && n == want[i] {
			i++
		}
	}
	require.Equal(t, len(want), i, "events %v do not contain %v in order", names, want)
}

const threeClaims = "```json\n" + `[
 {"claimId":"C1","originalText":"Revenue reached $5M in 2024","numericalValue":5000000,"metricUnit":"USD","category":"revenue","confidence":"high_stakes","sourceLocation":"Page 2"},
 {"claimId":"C2","originalText":"Total addressable market of $2B","numericalValue":2000000000,"metricUnit":"USD","category":"market_size","confidence":"high_stakes","sourceLocation":"Page 3"},
 {"claimId":"C3","originalText":"1,200 paying customers","numericalValue":1200,"metricUnit":"customers","category":"customer","confidence":"medium","sourceLocation":"Page 4"}
]` + "\n```"

var fourSources = []report.Source{
	{Title: "sec.gov", URL: "https://sec.gov/acme"},
	{Title: "reuters.com", URL: "https://reuters.com/acme"},
	{Title: "bloomberg.com", URL: "https://bloomberg.com/acme"},
	{Title: "ft.com", URL: "https://ft.com/acme"},
}

// assessByClaim gives each of threeClaims a different verdict. The revenue
// verdict says "verified" but reports a 19% variance.
func assessByClaim(user string) (string, error) {
	switch {
	case strings.Contains(user, "Revenue reached"):
		return `{"verifiedValue":4200000,"verifiedText":"$4.2M per 10-K","variancePercent":19.05,"riskLevel":"verified","explanation":"Revenue overstated"}`, nil
	case strings.Contains(user, "addressable market"):
		return "Sure:\n" + `{"verifiedValue":1870000000,"variancePercent":7,"riskLevel":"warning","explanation":"TAM slightly high"}`, nil
	default:
		return `{"verifiedValue":1190,"verifiedText":"1,190 customers","variancePercent":0.8,"riskLevel":"verified","explanation":"Matches filings"}`, nil
	}
}
