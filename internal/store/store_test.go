package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ccastromar/veritas/internal/report"
)

func sampleReport(id, project string, at time.Time) report.Report {
	v := 4.2e6
	variance := 19.05
	return report.Report{
		ReportID:     id,
		ProjectName:  project,
		DocumentName: "deck.txt",
		SubmittedAt:  at.Add(-time.Minute).UTC(),
		CompletedAt:  at.UTC(),
		OverallRisk:  report.OverallCritical,
		Summary:      "Revenue overstated.",
		Findings: []report.Finding{{
			ClaimID:         "C1",
			VerifiedValue:   &v,
			VariancePercent: &variance,
			RiskLevel:       report.RiskCritical,
			Sources:         []report.Source{{Title: "sec.gov", URL: "https://sec.gov/x"}},
		}},
		Recommendations: []string{"Re-check revenue"},
		CriticalErrors:  1,
	}
}

// exercise runs the same contract against every implementation.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.Get(ctx, "VER-missing")
	require.ErrorIs(t, err, ErrNotFound)

	first := sampleReport("VER-1-aaaaaa", "Acme", base)
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, sampleReport("VER-2-bbbbbb", "Globex", base.Add(time.Minute))))
	require.NoError(t, s.Save(ctx, sampleReport("VER-3-cccccc", "Initech", base.Add(2*time.Minute))))

	got, err := s.Get(ctx, first.ReportID)
	require.NoError(t, err)
	if diff := cmp.Diff(first, got); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}

	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "VER-3-cccccc", list[0].ReportID)
	require.Equal(t, "VER-2-bbbbbb", list[1].ReportID)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// saving again replaces without reordering
	first.Summary = "updated"
	require.NoError(t, s.Save(ctx, first))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	got, err = s.Get(ctx, first.ReportID)
	require.NoError(t, err)
	require.Equal(t, "updated", got.Summary)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "veritas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exercise(t, s)
}

func TestSQLite_ReopenKeepsReports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veritas.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleReport("VER-9-zzzzzz", "Acme", time.Now())))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	require.Error(t, err)
}
