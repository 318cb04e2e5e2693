package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ccastromar/veritas/internal/bus"
	"github.com/ccastromar/veritas/internal/guard"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/report"
	"github.com/ccastromar/veritas/internal/runtime"
	"github.com/ccastromar/veritas/internal/store"
)

const (
	Version      = "1.0.0"
	Architecture = "Boss-Grunt (Hierarchical Mixture of Agents)"

	defaultReportsLimit = 20
	maxReportsLimit     = 100
	recentReports       = 5

	// limiters unused for this long are dropped.
	limiterIdle = 10 * time.Minute
)

// APIOptions tunes the public HTTP surface.
type APIOptions struct {
	APIKey       string
	RateLimit    rate.Limit
	RateBurst    int
	MaxBodyBytes int64
	EventWindow  int
	PollInterval time.Duration
}

// APIAgent owns the HTTP API. It turns requests into jobs on the bus and
// serves job state, streams and stored reports.
type APIAgent struct {
	bus   *bus.Bus
	inbox chan bus.Message
	jobs  *jobs.Registry
	store store.Store
	rt    *runtime.Runtime
	opts  APIOptions

	limMu     sync.Mutex
	limiters  map[string]*clientLimiter
	lastSweep time.Time

	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewAPIAgent(b *bus.Bus, reg *jobs.Registry, st store.Store, rt *runtime.Runtime, opts APIOptions) *APIAgent {
	if opts.EventWindow <= 0 {
		opts.EventWindow = 20
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 60
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = rate.Inf
	}
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	return &APIAgent{
		bus:      b,
		inbox:    make(chan bus.Message, inboxSize),
		jobs:     reg,
		store:    st,
		rt:       rt,
		opts:     opts,
		limiters: make(map[string]*clientLimiter),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		now:      time.Now,
	}
}

func (a *APIAgent) Inbox() chan bus.Message {
	return a.inbox
}

// Start drains internal messages; the agent does its real work in HTTP handlers.
func (a *APIAgent) Start(ctx context.Context) error {
	return runLoop(ctx, "API", a.inbox, 1, func(msg bus.Message) {
		logx.Debug("API", "internal message ignored: %s", msg.Type)
	})
}

// RegisterHTTP mounts the public routes.
func (a *APIAgent) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /api/ingest", a.protect(a.handleIngest))
	mux.HandleFunc("GET /api/job/{id}", a.protect(a.handleJob))
	mux.HandleFunc("DELETE /api/job/{id}", a.protect(a.handleCancel))
	mux.HandleFunc("GET /api/stream/{id}", a.protect(a.handleSSE))
	mux.HandleFunc("GET /api/ws/{id}", a.protect(a.handleWS))
	mux.HandleFunc("GET /api/report/{id}", a.protect(a.handleReport))
	mux.HandleFunc("GET /api/reports", a.protect(a.handleReports))
	mux.HandleFunc("GET /api/status", a.protect(a.handleStatus))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// protect applies the optional API key and the per-client rate limit.
func (a *APIAgent) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.checkAuth(r) {
			w.Header().Set("WWW-Authenticate", "Bearer, X-API-Key")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !a.limiter(a.clientKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func (a *APIAgent) limiter(key string) *rate.Limiter {
	a.limMu.Lock()
	defer a.limMu.Unlock()
	now := a.now()
	if now.Sub(a.lastSweep) >= limiterIdle {
		for k, c := range a.limiters {
			if now.Sub(c.seen) >= limiterIdle {
				delete(a.limiters, k)
			}
		}
		a.lastSweep = now
	}
	c, ok := a.limiters[key]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(a.opts.RateLimit, a.opts.RateBurst)}
		a.limiters[key] = c
	}
	c.seen = now
	return c.lim
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// clientKey picks an identifier for rate limiting. The API key is only
// trusted once checkAuth has validated it; otherwise callers are keyed by IP.
func (a *APIAgent) clientKey(r *http.Request) string {
	if a.opts.APIKey != "" {
		if k := r.Header.Get("X-API-Key"); k != "" {
			return "key:" + k
		}
		if k := bearer(r); k != "" {
			return "key:" + k
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return "ip:" + host
}

func (a *APIAgent) checkAuth(r *http.Request) bool {
	if a.opts.APIKey == "" {
		return true
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k == a.opts.APIKey
	}
	return bearer(r) == a.opts.APIKey
}

func (a *APIAgent) totalReports(ctx context.Context) int {
	n, err := a.store.Count(ctx)
	if err != nil {
		logx.Warn("API", "counting reports: %v", err)
	}
	return n
}

func (a *APIAgent) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, active := a.jobs.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"service":      "veritas",
		"totalJobs":    total,
		"activeJobs":   active,
		"totalReports": a.totalReports(r.Context()),
		"bossModel":    a.rt.BossModel,
		"gruntModel":   a.rt.GruntModel,
		"integrations": a.rt.Integrations,
		"uptime":       a.rt.Uptime(a.now()),
	})
}

type ingestRequest struct {
	ProjectName  string `json:"projectName"`
	DocumentName string `json:"documentName"`
	DocumentText string `json:"documentText"`
}

func (a *APIAgent) readIngest(w http.ResponseWriter, r *http.Request) (ingestRequest, int, error) {
	var req ingestRequest
	if a.opts.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes)
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	switch mt {
	case "text/plain":
		var b []byte
		b, err = io.ReadAll(r.Body)
		req.DocumentText = string(b)
		req.ProjectName = r.URL.Query().Get("projectName")
		req.DocumentName = r.URL.Query().Get("documentName")
	case "application/json", "":
		err = json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return req, http.StatusUnsupportedMediaType, errors.New("unsupported media type")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return req, http.StatusBadRequest, errors.New("invalid request body")
	}
	return req, 0, nil
}

func (a *APIAgent) handleIngest(w http.ResponseWriter, r *http.Request) {
	req, code, err := a.readIngest(w, r)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	if err := guard.ValidateDocument(req.DocumentText, a.opts.MaxBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, _ := a.jobs.Create(context.Background(), strings.TrimSpace(req.ProjectName), strings.TrimSpace(req.DocumentName), req.DocumentText)
	logx.L(job.ID, "API", "ingest project=%q document=%q", job.ProjectName, job.DocumentName)

	if !a.bus.Send(r.Context(), TargetInspector, bus.Message{
		Type:    MsgNewJob,
		Payload: map[string]any{"id": job.ID},
	}) {
		a.jobs.Fail(job.ID, "Pipeline failed: intake unavailable", "PIPELINE_ERROR", "intake unavailable")
		writeError(w, http.StatusServiceUnavailable, "pipeline unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":   job.ID,
		"status":  jobs.StatusPending,
		"message": "Verification pipeline started. Poll /api/job/{id} for progress.",
	})
}

func (a *APIAgent) handleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := a.jobs.Get(id)
	if !guard.ValidID(id) || !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.View(a.opts.EventWindow))
}

func (a *APIAgent) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := a.jobs.Cancel(id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, jobs.ErrTerminal):
		writeError(w, http.StatusConflict, "Job already finished")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		job, _ := a.jobs.Get(id)
		writeJSON(w, http.StatusOK, job.View(a.opts.EventWindow))
	}
}

func (a *APIAgent) handleReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !guard.ValidID(id) {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	rep, err := a.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		logx.Error("API", "loading report %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultReportsLimit
	}
	return min(n, maxReportsLimit)
}

func (a *APIAgent) handleReports(w http.ResponseWriter, r *http.Request) {
	reps, err := a.store.List(r.Context(), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		logx.Error("API", "listing reports: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list reports")
		return
	}
	out := make([]report.Summary, 0, len(reps))
	for _, rep := range reps {
		out = append(out, rep.Summarize())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   a.totalReports(r.Context()),
		"reports": out,
	})
}

type recentReport struct {
	ReportID       string             `json:"reportId"`
	ProjectName    string             `json:"projectName"`
	OverallRisk    report.OverallRisk `json:"overallRisk"`
	CriticalErrors int                `json:"criticalErrors"`
}

type recentJob struct {
	ID       string      `json:"id"`
	Status   jobs.Status `json:"status"`
	Progress int         `json:"progress"`
}

func (a *APIAgent) handleStatus(w http.ResponseWriter, r *http.Request) {
	reps, err := a.store.List(r.Context(), recentReports)
	if err != nil {
		logx.Warn("API", "listing recent reports: %v", err)
	}
	recent := make([]recentReport, 0, len(reps))
	for _, rep := range reps {
		recent = append(recent, recentReport{
			ReportID:       rep.ReportID,
			ProjectName:    rep.ProjectName,
			OverallRisk:    rep.OverallRisk,
			CriticalErrors: rep.CriticalErrors,
		})
	}
	jobsNow := a.jobs.Recent(recentReports)
	recentJobs := make([]recentJob, 0, len(jobsNow))
	for _, j := range jobsNow {
		recentJobs = append(recentJobs, recentJob{ID: j.ID, Status: j.Status, Progress: j.Progress})
	}
	total, _ := a.jobs.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":       "veritas",
		"version":       Version,
		"architecture":  Architecture,
		"provider":      a.rt.Provider,
		"bossModel":     a.rt.BossModel,
		"gruntModel":    a.rt.GruntModel,
		"gruntChain":    a.rt.GruntChain,
		"totalJobs":     total,
		"totalReports":  a.totalReports(r.Context()),
		"recentReports": recent,
		"recentJobs":    recentJobs,
	})
}
