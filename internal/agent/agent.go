package agent

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/logx"
)

// Bus targets.
const (
	TargetInspector = "inspector"
	TargetPlanner   = "planner"
	TargetVerifier  = "verifier"
	TargetAnalyst   = "analyst"
)

// Message types.
const (
	MsgNewJob        = "new_job"
	MsgExtractClaims = "extract_claims"
	MsgVerifyClaims  = "verify_claims"
	MsgSynthesize    = "synthesize"
)

const inboxSize = 16

type Agent interface {
	Start(ctx context.Context) error
	Inbox() chan bus.Message
}

var tracer = otel.Tracer("github.com/ccastromar/veritas/internal/agent")

// runLoop hands every inbox message to handle on at most workers goroutines.
// A panicking handler is logged and does not take the agent down.
func runLoop(ctx context.Context, name string, inbox <-chan bus.Message, workers int, handle func(bus.Message)) error {
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for {
		select {
		case msg := <-inbox:
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						logx.Error(name, "panic recovered in dispatch: %v", r)
					}
				}()
				handle(msg)
				return nil
			})
		case <-ctx.Done():
			return g.Wait()
		}
	}
}

// jobID pulls the job id out of a payload.
func jobID(msg bus.Message) (string, error) {
	id, ok := msg.Payload["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("message %s without job id", msg.Type)
	}
	return id, nil
}

// jobContext returns the pipeline context of a job that is still running.
func jobContext(reg *jobs.Registry, id string) (context.Context, bool) {
	ctx, ok := reg.Context(id)
	if !ok || ctx.Err() != nil {
		return nil, false
	}
	return ctx, true
}

// failJob ends a job with PIPELINE_ERROR. It is a no-op for finished jobs,
// so a cancelled job keeps its PIPELINE_CANCELLED event.
func failJob(reg *jobs.Registry, id string, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = errors.New("pipeline timed out")
	}
	reg.Fail(id, "Pipeline failed: "+err.Error(), "PIPELINE_ERROR", err.Error())
}

// forward sends the next stage message, failing the job when nobody takes it.
func forward(ctx context.Context, b *bus.Bus, reg *jobs.Registry, id, target string, msg bus.Message) {
	if !b.Send(ctx, target, msg) {
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("%s unavailable", target)
		}
		failJob(reg, id, err)
	}
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
