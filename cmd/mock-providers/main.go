// Command mock-providers serves fake OpenRouter and Brave endpoints so the
// server can run locally without real API keys. Start it and point
// OPENROUTER_BASE_URL at http://localhost:9000/api/v1 and BRAVE_BASE_URL at
// http://localhost:9000.
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/mocks/providers"
)

func buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	providers.RegisterHandlers(mux)
	return mux
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	flag.Parse()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           buildMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logx.Info("MockProviders", "listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil {
		logx.Error("MockProviders", "server stopped: %v", err)
	}
}
