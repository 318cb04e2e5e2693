package agent

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/llm"
	"github.com/ccastromar/veritas/internal/logx"
)

// Planner is the Boss: it reads the document and decides which claims the
// grunts have to check.
type Planner struct {
	bus     *bus.Bus
	cfg     *config.Config
	boss    llm.LLMClient
	jobs    *jobs.Registry
	inbox   chan bus.Message
	workers int
}

func NewPlanner(b *bus.Bus, cfg *config.Config, boss llm.LLMClient, reg *jobs.Registry, workers int) *Planner {
	return &Planner{
		bus:     b,
		cfg:     cfg,
		boss:    boss,
		jobs:    reg,
		inbox:   make(chan bus.Message, inboxSize),
		workers: workers,
	}
}

func (p *Planner) Inbox() chan bus.Message {
	return p.inbox
}

func (p *Planner) Start(ctx context.Context) error {
	return runLoop(ctx, "Planner", p.inbox, p.workers, p.dispatch)
}

func (p *Planner) dispatch(msg bus.Message) {
	switch msg.Type {
	case MsgExtractClaims:
		p.handleExtract(msg)
	default:
		logx.Warn("Planner", "unknown message: %#v", msg.Type)
	}
}

func (p *Planner) handleExtract(msg bus.Message) {
	id, err := jobID(msg)
	if err != nil {
		logx.Warn("Planner", "%v", err)
		return
	}
	doc, _ := msg.Payload["document"].(string)
	ctx, ok := jobContext(p.jobs, id)
	if !ok {
		return
	}
	ctx, span := tracer.Start(ctx, "extract_claims", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.Int("document.chars", len(doc)),
	))
	defer span.End()

	p.jobs.SetStage(id, jobs.StatusExtracting, 10, "Boss is identifying high-stakes claims...")
	p.jobs.AddEvent(id, "EXTRACT_START", "Boss analyzing document for numerical claims")

	timer := logx.Start(id, "Planner", "ExtractClaims")
	claims, err := llm.ExtractClaims(ctx, p.boss, p.cfg.Prompts[config.PromptExtractClaims], llm.ExtractInput{
		Document:  doc,
		MaxClaims: p.cfg.Policy.MaxClaims,
	})
	timer.End()

	switch {
	case errors.Is(err, llm.ErrUnparseable):
		p.jobs.AddEvent(id, "EXTRACT_ERROR", fmt.Sprintf("Failed to parse claims: %v", err))
		claims = nil
	case err != nil:
		spanError(span, err)
		logx.L(id, "Planner", "extraction failed: %v", err)
		failJob(p.jobs, id, err)
		return
	default:
		p.jobs.AddEvent(id, "EXTRACT_COMPLETE", fmt.Sprintf("Found %d claims", len(claims)))
	}
	span.SetAttributes(attribute.Int("claims", len(claims)))

	if len(claims) == 0 {
		p.jobs.Fail(id, "No claims could be extracted from the document.", "PIPELINE_FAILED", "No claims extracted")
		return
	}
	p.jobs.SetProgress(id, 20, "")

	forward(ctx, p.bus, p.jobs, id, TargetVerifier, bus.Message{
		Type: MsgVerifyClaims,
		Payload: map[string]any{
			"id":     id,
			"claims": claims,
		},
	})
}
