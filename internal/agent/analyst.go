package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/llm"
	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/report"
	"github.com/ccastromar/veritas/internal/store"
)

// Analyst scores the findings, has the Boss write the summary and
// recommendations, and stores the final report.
type Analyst struct {
	bus     *bus.Bus
	cfg     *config.Config
	boss    llm.LLMClient
	jobs    *jobs.Registry
	store   store.Store
	inbox   chan bus.Message
	workers int
	now     func() time.Time
}

func NewAnalyst(b *bus.Bus, cfg *config.Config, boss llm.LLMClient, reg *jobs.Registry, st store.Store, workers int) *Analyst {
	return &Analyst{
		bus:     b,
		cfg:     cfg,
		boss:    boss,
		jobs:    reg,
		store:   st,
		inbox:   make(chan bus.Message, inboxSize),
		workers: workers,
		now:     time.Now,
	}
}

func (a *Analyst) Inbox() chan bus.Message {
	return a.inbox
}

func (a *Analyst) Start(ctx context.Context) error {
	return runLoop(ctx, "Analyst", a.inbox, a.workers, a.dispatch)
}

func (a *Analyst) dispatch(msg bus.Message) {
	switch msg.Type {
	case MsgSynthesize:
		a.handleSynthesize(msg)
	default:
		logx.Warn("Analyst", "unknown message: %#v", msg.Type)
	}
}

func (a *Analyst) handleSynthesize(msg bus.Message) {
	id, err := jobID(msg)
	if err != nil {
		logx.Warn("Analyst", "%v", err)
		return
	}
	claims, _ := msg.Payload["claims"].([]report.Claim)
	findings, _ := msg.Payload["findings"].([]report.Finding)
	job, ok := a.jobs.Get(id)
	if !ok {
		return
	}
	ctx, ok := jobContext(a.jobs, id)
	if !ok {
		return
	}
	ctx, span := tracer.Start(ctx, "synthesize_report", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.Int("findings", len(findings)),
	))
	defer span.End()

	a.jobs.SetStage(id, jobs.StatusSynthesizing, 85, "Boss is synthesizing the consultant-grade report...")
	a.jobs.AddEvent(id, "SYNTHESIZE_START", "Generating final report")

	stats := report.Tally(findings)
	in := llm.SummaryInput{
		DocumentName: job.DocumentName,
		Total:        len(claims),
		Critical:     stats.Critical,
		Warnings:     stats.Warnings,
		Verified:     stats.Verified,
		Unverified:   stats.Unverified,
		KeyFindings:  report.KeyFindings(claims, findings),
		Issues:       report.OpenIssues(findings),
	}

	timer := logx.Start(id, "Analyst", "ExecutiveSummary")
	summary, err := llm.Summarize(ctx, a.boss, a.cfg.Prompts[config.PromptExecutiveSummary], in)
	timer.End()
	if err != nil {
		if ctx.Err() != nil {
			failJob(a.jobs, id, ctx.Err())
			return
		}
		logx.L(id, "Analyst", "summary failed, using local summary: %v", err)
		summary = report.FallbackSummary(job.DocumentName, stats)
	}

	timer = logx.Start(id, "Analyst", "Recommendations")
	recs, err := llm.Recommend(ctx, a.boss, a.cfg.Prompts[config.PromptRecommendations], in)
	timer.End()
	if err != nil {
		if ctx.Err() != nil {
			failJob(a.jobs, id, ctx.Err())
			return
		}
		logx.L(id, "Analyst", "recommendations failed, using defaults: %v", err)
		recs = nil
	}

	rep := report.Build(report.BuildInput{
		ProjectName:     job.ProjectName,
		DocumentName:    job.DocumentName,
		SubmittedAt:     job.CreatedAt,
		Claims:          claims,
		Findings:        findings,
		Summary:         summary,
		Recommendations: recs,
	}, a.now())

	if err := a.store.Save(ctx, rep); err != nil {
		spanError(span, err)
		failJob(a.jobs, id, err)
		return
	}
	span.SetAttributes(attribute.String("report.id", rep.ReportID), attribute.String("report.risk", string(rep.OverallRisk)))

	a.jobs.AddEvent(id, "SYNTHESIZE_COMPLETE", fmt.Sprintf("Report %s generated", rep.ReportID))
	a.jobs.Complete(id, rep,
		fmt.Sprintf("Report complete. %d critical, %d warnings, %d verified.", rep.CriticalErrors, rep.Warnings, rep.Verified),
		"PIPELINE_COMPLETE", fmt.Sprintf("Finished in %dms", rep.ProcessingTimeMs))
}
