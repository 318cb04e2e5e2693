// Package jobs tracks verification jobs while they move through the pipeline:
// status, progress, the event timeline and the per-job context that cancels
// every Boss and grunt call of the job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/metrics"
	"github.com/ccastromar/veritas/internal/report"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrTerminal = errors.New("job already finished")
)

const (
	DefaultProjectName  = "Untitled Project"
	DefaultDocumentName = "document.txt"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusExtracting   Status = "extracting"
	StatusVerifying    Status = "verifying"
	StatusSynthesizing Status = "synthesizing"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail"`
}

type Job struct {
	ID            string
	ProjectName   string
	DocumentName  string
	DocumentText  string
	Status        Status
	Progress      int
	StatusMessage string
	Report        *report.Report
	CreatedAt     time.Time
	FinishedAt    time.Time
	Events        []Event
}

// View is the public form of a job: no document text and only the latest events.
type View struct {
	ID            string         `json:"id"`
	Status        Status         `json:"status"`
	Progress      int            `json:"progress"`
	StatusMessage string         `json:"statusMessage"`
	ProjectName   string         `json:"projectName"`
	DocumentName  string         `json:"documentName"`
	CreatedAt     time.Time      `json:"createdAt"`
	Events        []Event        `json:"events"`
	Report        *report.Report `json:"report"`
}

func (j Job) View(window int) View {
	events := j.Events
	if window > 0 && len(events) > window {
		events = events[len(events)-window:]
	}
	return View{
		ID:            j.ID,
		Status:        j.Status,
		Progress:      j.Progress,
		StatusMessage: j.StatusMessage,
		ProjectName:   j.ProjectName,
		DocumentName:  j.DocumentName,
		CreatedAt:     j.CreatedAt,
		Events:        append([]Event{}, events...),
		Report:        j.Report,
	}
}

type entry struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
}

// Registry is the in-memory job table. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*entry
	total   int
	timeout time.Duration
	now     func() time.Time
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		jobs:    make(map[string]*entry),
		timeout: timeout,
		now:     time.Now,
	}
}

// Create registers a pending job and returns it with its pipeline context.
// The context is derived from parent and expires after the pipeline timeout.
func (r *Registry) Create(parent context.Context, projectName, documentName, text string) (Job, context.Context) {
	if projectName == "" {
		projectName = DefaultProjectName
	}
	if documentName == "" {
		documentName = DefaultDocumentName
	}
	now := r.now().UTC()

	var ctx context.Context
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	j := Job{
		ID:            report.NewID("JOB", now),
		ProjectName:   projectName,
		DocumentName:  documentName,
		DocumentText:  text,
		Status:        StatusPending,
		StatusMessage: "Job queued. Starting analysis...",
		CreatedAt:     now,
	}

	r.mu.Lock()
	r.jobs[j.ID] = &entry{job: j, ctx: ctx, cancel: cancel}
	r.total++
	r.mu.Unlock()

	metrics.ActiveJobs.Inc()
	logx.L(j.ID, "Jobs", "created project=%q document=%q chars=%d", projectName, documentName, len(text))
	return j, ctx
}

// Get returns a deep copy of the job.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return copyJob(e.job), true
}

// Context returns the pipeline context of a job.
func (r *Registry) Context(id string) (context.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return e.ctx, true
}

func copyJob(j Job) Job {
	j.Events = append([]Event(nil), j.Events...)
	if j.Report != nil {
		rep := j.Report.Clone()
		stored := rep.Clone()
		j.Report = &stored
	}
	return j
}

// update runs fn on a live job. It reports false for unknown or finished jobs.
func (r *Registry) update(id string, fn func(j *Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() {
		return false
	}
	fn(&e.job)
	return true
}

// AddEvent appends a timeline event and logs it. Finished jobs keep their
// terminal event last, so late events are dropped and it reports false.
func (r *Registry) AddEvent(id, event, detail string) bool {
	ok := r.update(id, func(j *Job) {
		j.Events = append(j.Events, Event{Timestamp: r.now().UTC(), Event: event, Detail: detail})
	})
	if ok {
		logx.L(id, "Jobs", "%s: %s", event, detail)
	}
	return ok
}

// SetStage moves a running job to a new status.
func (r *Registry) SetStage(id string, status Status, progress int, msg string) bool {
	return r.update(id, func(j *Job) {
		j.Status = status
		j.Progress = progress
		if msg != "" {
			j.StatusMessage = msg
		}
	})
}

// SetProgress updates progress and, when msg is set, the status message.
func (r *Registry) SetProgress(id string, progress int, msg string) bool {
	return r.update(id, func(j *Job) {
		j.Progress = progress
		if msg != "" {
			j.StatusMessage = msg
		}
	})
}

// SetMessage replaces the status message only.
func (r *Registry) SetMessage(id, msg string) bool {
	return r.update(id, func(j *Job) { j.StatusMessage = msg })
}

// Complete attaches the report, finishes the job and records the final event
// in the same step so streams never see a finished job without it.
func (r *Registry) Complete(id string, rep report.Report, msg, event, detail string) bool {
	ok := r.update(id, func(j *Job) {
		now := r.now().UTC()
		j.Status = StatusComplete
		j.Progress = 100
		j.StatusMessage = msg
		j.Report = &rep
		j.FinishedAt = now
		j.Events = append(j.Events, Event{Timestamp: now, Event: event, Detail: detail})
	})
	if ok {
		logx.L(id, "Jobs", "%s: %s", event, detail)
		r.finish(id, StatusComplete)
	}
	return ok
}

// Fail marks the job failed and records event/detail. Finished jobs are left alone.
func (r *Registry) Fail(id, msg, event, detail string) bool {
	ok := r.update(id, func(j *Job) {
		now := r.now().UTC()
		j.Status = StatusFailed
		j.StatusMessage = msg
		j.FinishedAt = now
		j.Events = append(j.Events, Event{Timestamp: now, Event: event, Detail: detail})
	})
	if ok {
		logx.L(id, "Jobs", "%s: %s", event, detail)
		r.finish(id, StatusFailed)
	}
	return ok
}

// Cancel stops a running job.
func (r *Registry) Cancel(id string) error {
	r.mu.RLock()
	e, ok := r.jobs[id]
	terminal := ok && e.job.Status.Terminal()
	r.mu.RUnlock()
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	case terminal:
		return fmt.Errorf("%w: %s", ErrTerminal, id)
	}
	if !r.Fail(id, "Pipeline cancelled", "PIPELINE_CANCELLED", "Cancelled by request") {
		return fmt.Errorf("%w: %s", ErrTerminal, id)
	}
	return nil
}

// finish releases the job context and updates the job metrics.
func (r *Registry) finish(id string, status Status) {
	r.mu.RLock()
	e, ok := r.jobs[id]
	r.mu.RUnlock()
	if ok {
		e.cancel()
	}
	metrics.ActiveJobs.Dec()
	metrics.Jobs.WithLabelValues(string(status)).Inc()
}

// Stats returns the number of jobs ever submitted and the number still running.
func (r *Registry) Stats() (total, active int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.jobs {
		if !e.job.Status.Terminal() {
			active++
		}
	}
	return r.total, active
}

// Update is one poll of a job's timeline for streaming clients.
type Update struct {
	Status        Status
	Progress      int
	StatusMessage string
	ReportID      string
	Events        []Event
	Next          int
}

// Since returns the events recorded after the first `after` ones.
func (r *Registry) Since(id string, after int) (Update, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return Update{}, false
	}
	j := e.job
	if after < 0 || after > len(j.Events) {
		after = len(j.Events)
	}
	u := Update{
		Status:        j.Status,
		Progress:      j.Progress,
		StatusMessage: j.StatusMessage,
		Events:        append([]Event(nil), j.Events[after:]...),
		Next:          len(j.Events),
	}
	if j.Report != nil {
		u.ReportID = j.Report.ReportID
	}
	return u, true
}

// Recent lists up to limit jobs, newest first.
func (r *Registry) Recent(limit int) []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, copyJob(e.job))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Evict drops finished jobs older than retention and returns how many went.
func (r *Registry) Evict(retention time.Duration) int {
	cutoff := r.now().Add(-retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.jobs {
		if e.job.Status.Terminal() && e.job.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

// RunJanitor evicts old jobs every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, every, retention time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := r.Evict(retention); n > 0 {
				logx.Debug("Jobs", "evicted %d finished jobs", n)
			}
		}
	}
}

// CancelAll fails every running job, used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.jobs))
	for id, e := range r.jobs {
		if !e.job.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.Fail(id, "Pipeline cancelled", "PIPELINE_CANCELLED", "Server shutting down")
	}
}
