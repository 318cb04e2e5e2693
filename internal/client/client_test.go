package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccastromar/veritas/internal/agent"
	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/report"
	"github.com/ccastromar/veritas/internal/runtime"
	"github.com/ccastromar/veritas/internal/store"
)

type server struct {
	*httptest.Server
	jobs  *jobs.Registry
	store *store.Memory
	inbox chan bus.Message
}

func newServer(t *testing.T, apiKey string) *server {
	t.Helper()
	s := &server{
		jobs:  jobs.NewRegistry(time.Minute),
		store: store.NewMemory(),
		inbox: make(chan bus.Message, 4),
	}
	b := bus.New()
	b.Subscribe(agent.TargetInspector, s.inbox)
	api := agent.NewAPIAgent(b, s.jobs, s.store, &runtime.Runtime{SpecsLoaded: true}, agent.APIOptions{
		APIKey:       apiKey,
		PollInterval: 10 * time.Millisecond,
	})
	mux := http.NewServeMux()
	api.RegisterHTTP(mux)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.Close()
		s.jobs.CancelAll()
	})
	return s
}

func TestSubmitJobAndReport(t *testing.T) {
	s := newServer(t, "k")
	c := New(s.URL, "k")
	ctx := context.Background()

	acc, err := c.Submit(ctx, SubmitRequest{ProjectName: "Acme", DocumentText: "Revenue was $5M"})
	require.NoError(t, err)
	require.Equal(t, jobs.StatusPending, acc.Status)
	require.Equal(t, acc.JobID, (<-s.inbox).Payload["id"])

	view, err := c.Job(ctx, acc.JobID)
	require.NoError(t, err)
	require.Equal(t, "Acme", view.ProjectName)

	rep := report.Report{ReportID: "VER-1-abcdef", ProjectName: "Acme", OverallRisk: report.OverallClean}
	require.NoError(t, s.store.Save(ctx, rep))
	got, err := c.Report(ctx, rep.ReportID)
	require.NoError(t, err)
	require.Equal(t, rep.ReportID, got.ReportID)

	view, err = c.Cancel(ctx, acc.JobID)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusFailed, view.Status)
}

func TestAPIErrors(t *testing.T) {
	s := newServer(t, "k")
	ctx := context.Background()

	_, err := New(s.URL, "wrong").Job(ctx, "JOB-1-abcdef")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = New(s.URL, "k").Report(ctx, "VER-404")
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "Report not found", apiErr.Message)

	_, err = New(s.URL, "k").Submit(ctx, SubmitRequest{})
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestWatch(t *testing.T) {
	s := newServer(t, "")
	c := New(s.URL, "")
	job, _ := s.jobs.Create(context.Background(), "", "", "x")

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.jobs.SetStage(job.ID, jobs.StatusExtracting, 10, "Boss is identifying high-stakes claims...")
		s.jobs.AddEvent(job.ID, "EXTRACT_START", "Boss analyzing document for numerical claims")
		s.jobs.Fail(job.ID, "No claims could be extracted from the document.", "PIPELINE_FAILED", "No claims extracted")
	}()

	var seen []string
	last, err := c.Watch(context.Background(), job.ID, func(f agent.StreamFrame) { seen = append(seen, f.Event) })
	require.NoError(t, err)
	require.Equal(t, []string{"EXTRACT_START", "PIPELINE_FAILED", "PIPELINE_DONE"}, seen)
	require.Equal(t, jobs.StatusFailed, last.Status)
	require.Equal(t, "Pipeline failed", last.Detail)
}

func TestWatch_UnknownJob(t *testing.T) {
	s := newServer(t, "")
	_, err := New(s.URL, "").Watch(context.Background(), "JOB-missing", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestWatch_ContextCancelled(t *testing.T) {
	s := newServer(t, "")
	job, _ := s.jobs.Create(context.Background(), "", "", "x")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(s.URL, "").Watch(ctx, job.ID, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
