// Package store persists finished verification reports.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/ccastromar/veritas/internal/report"
)

var ErrNotFound = errors.New("report not found")

// Store keeps reports. List returns summaries newest first.
type Store interface {
	Save(ctx context.Context, r report.Report) error
	Get(ctx context.Context, id string) (report.Report, error)
	List(ctx context.Context, limit int) ([]report.Report, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Memory is the default store. Reports live until the process exits.
type Memory struct {
	mu      sync.RWMutex
	reports []report.Report
	byID    map[string]int
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

func (m *Memory) Save(ctx context.Context, r report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[r.ReportID]; ok {
		m.reports[i] = r
		return nil
	}
	m.byID[r.ReportID] = len(m.reports)
	m.reports = append(m.reports, r)
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (report.Report, error) {
	if err := ctx.Err(); err != nil {
		return report.Report{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return report.Report{}, ErrNotFound
	}
	return m.reports[i], nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.reports)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]report.Report, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.reports[i])
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports), nil
}

func (m *Memory) Close() error { return nil }
