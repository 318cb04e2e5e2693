package research

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ccastromar/veritas/internal/logx"
	"github.com/ccastromar/veritas/internal/metrics"
)

// Chain tries researchers in order and returns the first answer. When every
// researcher is skipped or fails it returns the NoDataAnswer result.
type Chain struct {
	researchers []Researcher
	limiter     *rate.Limiter
}

// NewChain orders the available researchers by name. Unknown names are an
// error so a typo in the policy file does not silently disable a grunt.
func NewChain(order []string, available map[string]Researcher, limiter *rate.Limiter) (*Chain, error) {
	c := &Chain{limiter: limiter}
	for _, name := range order {
		r, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("grunt chain: unknown researcher %q", name)
		}
		c.researchers = append(c.researchers, r)
	}
	return c, nil
}

// Names lists the researchers in the order they are tried.
func (c *Chain) Names() []string {
	out := make([]string, 0, len(c.researchers))
	for _, r := range c.researchers {
		out = append(out, r.Name())
	}
	return out
}

// Research only returns an error when ctx is done.
func (c *Chain) Research(ctx context.Context, query string) (Result, error) {
	for _, r := range c.researchers {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Result{}, err
			}
		}
		res, err := r.Research(ctx, query)
		switch {
		case err == nil:
			metrics.GruntSearches.WithLabelValues(r.Name(), "ok").Inc()
			return res, nil
		case errors.Is(err, ErrNotConfigured):
			metrics.GruntSearches.WithLabelValues(r.Name(), "skipped").Inc()
		default:
			metrics.GruntSearches.WithLabelValues(r.Name(), "error").Inc()
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			logx.Warn("Grunt", "%s failed, trying next: %v", r.Name(), err)
		}
	}
	return Result{Answer: NoDataAnswer, Researcher: "none"}, nil
}
