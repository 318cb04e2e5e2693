package agent

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/report"
)

// Inspector accepts new jobs and trims the document to the Boss context size.
type Inspector struct {
	bus     *bus.Bus
	jobs    *jobs.Registry
	policy  config.Policy
	inbox   chan bus.Message
	workers int
}

func NewInspector(b *bus.Bus, reg *jobs.Registry, policy config.Policy, workers int) *Inspector {
	return &Inspector{
		bus:     b,
		jobs:    reg,
		policy:  policy,
		inbox:   make(chan bus.Message, inboxSize),
		workers: workers,
	}
}

func (i *Inspector) Inbox() chan bus.Message {
	return i.inbox
}

func (i *Inspector) Start(ctx context.Context) error {
	return runLoop(ctx, "Inspector", i.inbox, i.workers, i.dispatch)
}

func (i *Inspector) dispatch(msg bus.Message) {
	switch msg.Type {
	case MsgNewJob:
		i.handleNewJob(msg)
	default:
		logx.Warn("Inspector", "unknown message: %#v", msg.Type)
	}
}

func (i *Inspector) handleNewJob(msg bus.Message) {
	id, err := jobID(msg)
	if err != nil {
		logx.Warn("Inspector", "%v", err)
		return
	}
	job, ok := i.jobs.Get(id)
	if !ok {
		logx.Warn("Inspector", "job %s vanished before intake", id)
		return
	}
	ctx, ok := jobContext(i.jobs, id)
	if !ok {
		return
	}

	chars := utf8.RuneCountInString(job.DocumentText)
	doc := report.Truncate(job.DocumentText, i.policy.MaxDocumentChars)
	detail := fmt.Sprintf("%s / %s (%d chars)", job.ProjectName, job.DocumentName, chars)
	if kept := utf8.RuneCountInString(doc); kept < chars {
		detail += fmt.Sprintf(", truncated to %d", kept)
	}
	i.jobs.AddEvent(id, "JOB_ACCEPTED", detail)
	i.jobs.SetProgress(id, 10, "")

	forward(ctx, i.bus, i.jobs, id, TargetPlanner, bus.Message{
		Type: MsgExtractClaims,
		Payload: map[string]any{
			"id":       id,
			"document": doc,
		},
	})
}
