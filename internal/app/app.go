package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ccastromar/veritas/internal/agent"
	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/llm"
	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/research"
	"github.com/ccastromar/veritas/internal/runtime"
	"github.com/ccastromar/veritas/internal/store"
)

const janitorEvery = time.Minute

type App struct {
	env    *config.EnvVars
	cfg    *config.Config
	bus    *bus.Bus
	jobs   *jobs.Registry
	store  store.Store
	rt     *runtime.Runtime
	agents []agent.Agent
	boss   llm.LLMClient
	http   *HTTPServer
}

// New builds the app from the process environment.
func New() (*App, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, fmt.Errorf("loading env: %w", err)
	}
	return NewWithEnv(env)
}

// NewWithEnv wires definitions, LLM clients, researchers, storage and agents.
func NewWithEnv(env *config.EnvVars) (*App, error) {
	cfg, err := config.LoadFromDir(env.DefinitionsDir)
	if err != nil {
		return nil, err
	}

	boss, bossModel, err := newBoss(env)
	if err != nil {
		return nil, err
	}
	chain, err := newGruntChain(env, cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(env.DBPath)
	if err != nil {
		return nil, err
	}

	messageBus := bus.New()
	registry := jobs.NewRegistry(env.PipelineTimeout)

	rt := &runtime.Runtime{
		SpecsLoaded: true,
		LLMClient:   boss,
		Provider:    env.LLMProvider,
		BossModel:   bossModel,
		GruntModel:  env.GruntModel,
		GruntChain:  chain.Names(),
		Integrations: runtime.Integrations{
			OpenRouter: env.OpenRouterAPIKey != "",
			Brave:      env.BraveAPIKey != "",
		},
		StartedAt: time.Now(),
	}

	workers := env.BusWorkers
	apiAgent := agent.NewAPIAgent(messageBus, registry, st, rt, agent.APIOptions{
		APIKey:       env.APIKey,
		RateLimit:    limit(env.RateLimit),
		RateBurst:    env.RateLimitBurst,
		MaxBodyBytes: env.MaxBodyBytes,
		EventWindow:  cfg.Policy.EventWindow,
	})
	inspector := agent.NewInspector(messageBus, registry, cfg.Policy, workers)
	planner := agent.NewPlanner(messageBus, cfg, boss, registry, workers)
	verifier := agent.NewVerifier(messageBus, cfg, boss, chain, registry, workers)
	analyst := agent.NewAnalyst(messageBus, cfg, boss, registry, st, workers)

	messageBus.Subscribe("api", apiAgent.Inbox())
	messageBus.Subscribe(agent.TargetInspector, inspector.Inbox())
	messageBus.Subscribe(agent.TargetPlanner, planner.Inbox())
	messageBus.Subscribe(agent.TargetVerifier, verifier.Inbox())
	messageBus.Subscribe(agent.TargetAnalyst, analyst.Inbox())

	port := httpPort
	if port == "" {
		port = fmt.Sprint(env.Port)
	}

	return &App{
		env:    env,
		cfg:    cfg,
		bus:    messageBus,
		jobs:   registry,
		store:  st,
		rt:     rt,
		agents: []agent.Agent{apiAgent, inspector, planner, verifier, analyst},
		boss:   boss,
		http:   NewHTTPServer(port, Routes(apiAgent, rt), env),
	}, nil
}

// limit turns a per-second rate into a limiter rate; zero or less means unlimited.
func limit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func newBoss(env *config.EnvVars) (llm.LLMClient, string, error) {
	switch strings.ToLower(env.LLMProvider) {
	case "ollama":
		c := llm.NewOllamaClient(env.OllamaBaseURL, env.OllamaModel)
		if env.LLMTimeout > 0 {
			c.Timeout = env.LLMTimeout
		}
		return c, env.OllamaModel, nil
	case "openrouter", "":
		c := newOpenRouter(env, env.BossModel)
		return c, env.BossModel, nil
	default:
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER %q", env.LLMProvider)
	}
}

func newOpenRouter(env *config.EnvVars, model string) *llm.OpenAIClient {
	c := llm.NewOpenAIClient(env.OpenRouterBaseURL, env.OpenRouterAPIKey, model)
	if env.LLMTimeout > 0 {
		c.Timeout = env.LLMTimeout
	}
	c.Limiter = rate.NewLimiter(limit(env.LLMRateLimit), 1)
	return c
}

// newGruntChain builds the researchers in policy order. The research model
// always goes through OpenRouter, whichever provider runs the Boss.
func newGruntChain(env *config.EnvVars, cfg *config.Config) (*research.Chain, error) {
	available := map[string]research.Researcher{
		"llm": &research.LLMResearcher{
			Client: newOpenRouter(env, env.GruntModel),
			Prompt: cfg.Prompts[config.PromptGruntResearch],
		},
		"brave": &research.BraveResearcher{
			Tool:    cfg.Tools[research.BraveTool],
			BaseURL: env.BraveBaseURL,
			APIKey:  env.BraveAPIKey,
			Count:   5,
			HTTP:    &http.Client{Timeout: 15 * time.Second},
		},
	}
	return research.NewChain(cfg.Policy.GruntChain, available, rate.NewLimiter(limit(env.SearchRate), 1))
}

func openStore(path string) (store.Store, error) {
	if path == "" {
		return store.NewMemory(), nil
	}
	st, err := store.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("opening report store: %w", err)
	}
	logx.Info("App", "reports stored in %s", path)
	return st, nil
}

// Handler exposes the full HTTP stack, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.http.srv.Handler
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, ag := range a.agents {
		g.Go(func() error {
			return ag.Start(gctx)
		})
	}

	g.Go(func() error {
		return a.http.Start(gctx)
	})

	if a.jobs != nil {
		retention := time.Hour
		if a.env != nil {
			retention = a.env.JobRetention
		}
		g.Go(func() error {
			return a.jobs.RunJanitor(gctx, janitorEvery, retention)
		})
		// Running jobs hold contexts detached from requests; failing them lets
		// agents drain before the group returns.
		g.Go(func() error {
			<-gctx.Done()
			a.jobs.CancelAll()
			return nil
		})
	}

	logx.Info("App", "Veritas %s started (boss=%s grunts=%v)", agent.Version, a.bossModel(), a.gruntChain())

	err := g.Wait()
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func (a *App) bossModel() string {
	if a.rt == nil {
		return ""
	}
	return a.rt.BossModel
}

func (a *App) gruntChain() []string {
	if a.rt == nil {
		return nil
	}
	return a.rt.GruntChain
}
