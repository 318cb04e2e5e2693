package app

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ccastromar/veritas/internal/agent"
	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/health"
	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/metrics"
	"github.com/ccastromar/veritas/internal/runtime"
)

type HTTPServer struct {
	srv *http.Server
}

// httpPort overrides PORT when set, e.g. from the --port flag.
var httpPort = ""

// SetHTTPPort allows overriding the configured HTTP port before building the app.
func SetHTTPPort(p string) {
	if p == "" {
		return
	}
	httpPort = p
}

// Routes mounts the public API, health probes and metrics on one mux.
func Routes(apiAgent *agent.APIAgent, rt *runtime.Runtime) *http.ServeMux {
	mux := http.NewServeMux()
	apiAgent.RegisterHTTP(mux)
	mux.HandleFunc("GET /health/live", health.LiveHandler)
	mux.HandleFunc("GET /health/ready", health.ReadyHandler(rt))
	mux.HandleFunc("GET /metrics", metrics.ServeHTTP)
	return mux
}

func NewHTTPServer(port string, mux *http.ServeMux, env *config.EnvVars) *HTTPServer {
	hardened := secureMiddleware(instrument(mux), env.MaxBodyBytes)

	return &HTTPServer{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           hardened,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       env.ReadTimeout,
			// streams stay open for the whole pipeline, so WriteTimeout defaults to none
			WriteTimeout:   env.WriteTimeout,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}
}

func (h *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logx.Info("HTTP", "listening on %s", h.srv.Addr)
		errCh <- h.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logx.Info("HTTP", "shutting down server...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.srv.Shutdown(shutCtx)
	}
}

// statusRecorder keeps the response code for metrics while staying usable
// for SSE flushing and websocket hijacking.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	if s.status == 0 {
		s.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

// instrument records request counts and latency labelled by route pattern,
// which keeps job ids out of the label set.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		code := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}

// secureMiddleware adds basic hardening to HTTP server:
// - Common security headers
// - Body size limit
// - Block TRACE method
func secureMiddleware(next http.Handler, maxBody int64) http.Handler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodTrace {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-XSS-Protection", "0")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// HSTS only when TLS is enabled
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		}

		next.ServeHTTP(w, r)
	})
}
