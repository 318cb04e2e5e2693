package bus

import (
	"context"
	"sync"

	"github.com/ccastromar/veritas/internal/metrics"
)

type Message struct {
	Type    string
	Payload map[string]any
}

type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan Message
}

func New() *Bus {
	return &Bus{
		subs: make(map[string]chan Message),
	}
}

func (b *Bus) Subscribe(name string, ch chan Message) {
	b.mu.Lock()
	b.subs[name] = ch
	b.mu.Unlock()
}

// Send delivers msg to target, blocking while its inbox is full.
// It returns false when nobody is subscribed under target or ctx ends first.
func (b *Bus) Send(ctx context.Context, target string, msg Message) bool {
	b.mu.RLock()
	ch, ok := b.subs[target]
	b.mu.RUnlock()
	if !ok {
		metrics.BusMessages.WithLabelValues(target, "dropped").Inc()
		return false
	}
	select {
	case ch <- msg:
		metrics.BusMessages.WithLabelValues(target, "sent").Inc()
		return true
	case <-ctx.Done():
		metrics.BusMessages.WithLabelValues(target, "dropped").Inc()
		return false
	}
}
