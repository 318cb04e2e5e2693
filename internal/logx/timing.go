package logx

import (
	"time"

	"go.uber.org/zap/zapcore"
)

type Timer struct {
	start time.Time
	id    string
	comp  string
	op    string
}

func Start(id, comp, op string) *Timer {
	return &Timer{
		start: time.Now(),
		id:    id,
		comp:  comp,
		op:    op,
	}
}

// Duration returns the time elapsed since Start.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// End logs the elapsed time and returns it.
func (t *Timer) End() time.Duration {
	elapsed := t.Duration()
	logFields(zapcore.DebugLevel, t.comp, t.id, []any{"op", t.op, "elapsed", elapsed}, "[TIMING] %s = %v", t.op, elapsed)
	return elapsed
}
