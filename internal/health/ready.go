package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ccastromar/veritas/internal/llm"
	"github.com/ccastromar/veritas/internal/runtime"
)

// ReadyHandler reports ready once definitions are loaded and the Boss answers
// a ping. A Boss without credentials is reported as not configured.
func ReadyHandler(rt *runtime.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rt.SpecsLoaded {
			http.Error(w, "definitions not loaded", http.StatusServiceUnavailable)
			return
		}
		if rt.LLMClient == nil {
			http.Error(w, "llm not configured", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := rt.LLMClient.Ping(ctx); err != nil {
			if errors.Is(err, llm.ErrNotConfigured) {
				http.Error(w, "llm not configured", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "llm unreachable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
