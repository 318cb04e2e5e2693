// Package runtime holds what the running service knows about itself:
// whether definitions loaded, which Boss it talks to and which grunts are
// configured. Health and status endpoints read it.
package runtime

import (
	"time"

	"github.com/ccastromar/veritas/internal/llm"
)

type Integrations struct {
	OpenRouter bool `json:"openrouter"`
	Brave      bool `json:"brave"`
}

type Runtime struct {
	SpecsLoaded  bool
	LLMClient    llm.LLMClient
	Provider     string
	BossModel    string
	GruntModel   string
	GruntChain   []string
	Integrations Integrations
	StartedAt    time.Time
}

// Uptime is the time since StartedAt, in seconds.
func (rt *Runtime) Uptime(now time.Time) float64 {
	if rt.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(rt.StartedAt).Seconds()
}
