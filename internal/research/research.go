// Package research holds the grunts: researchers that fetch independent data
// for a claim, and the ordered chain that falls back from one to the next.
package research

import (
	"context"
	"errors"

	"github.com/ccastromar/veritas/internal/report"
)

// ErrNotConfigured is returned by a researcher that has no credentials.
// The chain skips it without logging a failure.
var ErrNotConfigured = errors.New("researcher not configured")

// NoDataAnswer is the terminal fallback when no researcher produced anything.
const NoDataAnswer = "UNVERIFIED — no search APIs configured"

type Result struct {
	Answer     string          `json:"answer"`
	Sources    []report.Source `json:"sources"`
	Researcher string          `json:"researcher"`
}

type Researcher interface {
	Name() string
	Research(ctx context.Context, query string) (Result, error)
}
