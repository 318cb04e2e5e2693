package agent

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/guard"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/llm"
	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/metrics"
	"github.com/ccastromar/veritas/internal/report"
	"github.com/ccastromar/veritas/internal/research"
)

const (
	maxFindingSources = 3
	fallbackTextChars = 200
)

// Researcher is what the Verifier needs from the grunts.
type Researcher interface {
	Research(ctx context.Context, query string) (research.Result, error)
}

// Verifier sends every claim to the grunts and has the Boss score the variance.
type Verifier struct {
	bus     *bus.Bus
	cfg     *config.Config
	boss    llm.LLMClient
	grunts  Researcher
	jobs    *jobs.Registry
	inbox   chan bus.Message
	workers int
}

func NewVerifier(b *bus.Bus, cfg *config.Config, boss llm.LLMClient, grunts Researcher, reg *jobs.Registry, workers int) *Verifier {
	return &Verifier{
		bus:     b,
		cfg:     cfg,
		boss:    boss,
		grunts:  grunts,
		jobs:    reg,
		inbox:   make(chan bus.Message, inboxSize),
		workers: workers,
	}
}

func (v *Verifier) Inbox() chan bus.Message {
	return v.inbox
}

func (v *Verifier) Start(ctx context.Context) error {
	return runLoop(ctx, "Verifier", v.inbox, v.workers, v.dispatch)
}

func (v *Verifier) dispatch(msg bus.Message) {
	switch msg.Type {
	case MsgVerifyClaims:
		v.handleVerify(msg)
	default:
		logx.Warn("Verifier", "unknown message: %#v", msg.Type)
	}
}

// progressFor maps done/total onto the 20..80 band of the job progress.
func progressFor(done, total int) int {
	if total < 1 {
		return 80
	}
	return int(math.Round(float64(done)/float64(total)*60)) + 20
}

func (v *Verifier) handleVerify(msg bus.Message) {
	id, err := jobID(msg)
	if err != nil {
		logx.Warn("Verifier", "%v", err)
		return
	}
	claims, _ := msg.Payload["claims"].([]report.Claim)
	ctx, ok := jobContext(v.jobs, id)
	if !ok {
		return
	}
	ctx, span := tracer.Start(ctx, "verify_claims", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.Int("claims", len(claims)),
	))
	defer span.End()

	total := len(claims)
	v.jobs.SetStage(id, jobs.StatusVerifying, 20, "Grunts are verifying claims against live data...")
	v.jobs.AddEvent(id, "VERIFY_START", fmt.Sprintf("Verifying %d claims", total))

	findings := make([]report.Finding, total)
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, v.cfg.Policy.VerifyConcurrency))
	for i, c := range claims {
		// Go blocks while the limit is reached, so a cancelled job can
		// still reach here with claims left.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v.jobs.SetMessage(id, fmt.Sprintf("Verifying claim %d/%d: %s...", i+1, total, report.Truncate(c.OriginalText, 50)))
			f, err := v.verifyClaim(gctx, id, c)
			if err != nil {
				return err
			}
			findings[i] = f
			mu.Lock()
			done++
			v.jobs.SetProgress(id, progressFor(done, total), "")
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		spanError(span, err)
		failJob(v.jobs, id, err)
		return
	}

	v.jobs.AddEvent(id, "VERIFY_COMPLETE", fmt.Sprintf("%d claims verified", len(findings)))
	v.jobs.SetProgress(id, 80, "")

	forward(ctx, v.bus, v.jobs, id, TargetAnalyst, bus.Message{
		Type: MsgSynthesize,
		Payload: map[string]any{
			"id":       id,
			"claims":   claims,
			"findings": findings,
		},
	})
}

// verifyClaim only returns an error when the job context is done; every
// other failure degrades to an unverified finding.
func (v *Verifier) verifyClaim(ctx context.Context, id string, c report.Claim) (report.Finding, error) {
	v.jobs.AddEvent(id, "VERIFY_CLAIM", "Grunt searching for: "+report.Truncate(c.OriginalText, 80))

	query, err := llm.Render(v.cfg.Prompts[config.PromptGruntQuery], struct{ Claim report.Claim }{c})
	if err != nil {
		return report.Finding{}, err
	}
	timer := logx.Start(id, "Verifier", "Research "+c.ClaimID)
	res, err := v.grunts.Research(ctx, query.User)
	timer.End()
	if err != nil {
		return report.Finding{}, err
	}

	th := v.cfg.Policy.Thresholds
	timer = logx.Start(id, "Verifier", "AssessVariance "+c.ClaimID)
	a, err := llm.AssessVariance(ctx, v.boss, v.cfg.Prompts[config.PromptAssessVariance], llm.AssessInput{
		Claim:           c,
		Value:           report.FormatValue(c.NumericalValue, "null"),
		Answer:          res.Answer,
		CriticalPercent: th.CriticalPercent,
		WarningPercent:  th.WarningPercent,
	})
	timer.End()
	if ctx.Err() != nil {
		return report.Finding{}, ctx.Err()
	}
	if err != nil {
		logx.L(id, "Verifier", "assessment for %s failed: %v", c.ClaimID, err)
		f := report.Finding{
			ClaimID:      c.ClaimID,
			VerifiedText: report.Truncate(res.Answer, fallbackTextChars),
			Sources:      append([]report.Source{}, res.Sources...),
			RiskLevel:    report.RiskUnverified,
			Explanation:  "Could not assess variance — manual review recommended",
		}
		metrics.Findings.WithLabelValues(string(f.RiskLevel)).Inc()
		v.jobs.AddEvent(id, "VERIFY_FALLBACK", c.ClaimID+": marked unverified")
		return f, nil
	}

	sources := res.Sources
	if len(sources) > maxFindingSources {
		sources = sources[:maxFindingSources]
	}
	f := report.Finding{
		ClaimID:         c.ClaimID,
		VerifiedValue:   a.VerifiedValue,
		VerifiedText:    a.VerifiedText,
		Sources:         append([]report.Source{}, sources...),
		VariancePercent: a.VariancePercent,
		RiskLevel:       guard.ReconcileRisk(a.RiskLevel, a.VariancePercent, a.VerifiedValue, th),
		Explanation:     a.Explanation,
	}
	if f.VerifiedText == "" {
		f.VerifiedText = "See sources"
	}
	if f.Explanation == "" {
		f.Explanation = "Assessment inconclusive"
	}
	metrics.Findings.WithLabelValues(string(f.RiskLevel)).Inc()
	v.jobs.AddEvent(id, "VERIFY_RESULT", fmt.Sprintf("%s: %s (%s%% variance)",
		c.ClaimID, f.RiskLevel, report.FormatValue(f.VariancePercent, "N/A")))
	return f, nil
}
