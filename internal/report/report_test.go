package report

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestTally_CountsLevelsAndDistinctSources(t *testing.T) {
	findings := []Finding{
		{ClaimID: "C1", RiskLevel: RiskCritical, Sources: []Source{{URL: "https://a"}, {URL: "https://b"}}},
		{ClaimID: "C2", RiskLevel: RiskWarning, Sources: []Source{{URL: "https://a"}}},
		{ClaimID: "C3", RiskLevel: RiskVerified},
		{ClaimID: "C4", RiskLevel: RiskUnverified},
		{ClaimID: "C5", RiskLevel: "bogus"},
	}
	got := Tally(findings)
	want := Stats{Critical: 1, Warnings: 1, Verified: 1, Unverified: 2, DataSources: 2, Total: 5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Tally mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, OverallCritical, got.OverallRisk())
	// (1 + 0.5) / 5 = 30%
	require.Equal(t, 30, got.ConfidenceScore())
}

func TestStats_OverallRiskAndEmptyScore(t *testing.T) {
	require.Equal(t, OverallWarning, Stats{Warnings: 2, Verified: 1, Total: 3}.OverallRisk())
	require.Equal(t, OverallClean, Stats{Verified: 3, Total: 3}.OverallRisk())
	require.Equal(t, 0, Stats{}.ConfidenceScore())
	// (2 + 0.5) / 3 = 83.33 -> 83
	require.Equal(t, 83, Stats{Verified: 2, Warnings: 1, Total: 3}.ConfidenceScore())
}

func TestNormalizeClaims(t *testing.T) {
	in := []Claim{
		{ClaimID: "C1", OriginalText: " Revenue hit $10M ", Category: "REVENUE", Confidence: "high_stakes"},
		{ClaimID: "", OriginalText: "TAM is $4B", Category: "tam", Confidence: "very"},
		{ClaimID: "C9", OriginalText: "   "},
		{ClaimID: "C1", OriginalText: "Duplicate id", Category: "growth", Confidence: "low"},
		{ClaimID: "C7", OriginalText: "over the cap"},
	}
	got := NormalizeClaims(in, 3)

	want := []Claim{
		{ClaimID: "C1", OriginalText: "Revenue hit $10M", Category: CategoryRevenue, Confidence: ConfidenceHighStakes},
		{ClaimID: "C2", OriginalText: "TAM is $4B", Category: CategoryOther, Confidence: ConfidenceMedium},
		{ClaimID: "C3", OriginalText: "Duplicate id", Category: CategoryGrowth, Confidence: ConfidenceLow},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("NormalizeClaims mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyFindingsAndOpenIssues(t *testing.T) {
	claims := []Claim{
		{ClaimID: "C1", OriginalText: "Revenue was $12M"},
		{ClaimID: "C2", OriginalText: "500 customers"},
		{ClaimID: "C3", OriginalText: "Growth 40%"},
	}
	findings := []Finding{
		{ClaimID: "C1", RiskLevel: RiskCritical, VariancePercent: ptr(20), Explanation: "Filed revenue is $10M"},
		{ClaimID: "C2", RiskLevel: RiskVerified, Explanation: "matches"},
		{ClaimID: "C3", RiskLevel: RiskWarning, Explanation: "close"},
	}

	lines := KeyFindings(claims, findings)
	require.Len(t, lines, 2)
	require.Equal(t, `- CRITICAL: "Revenue was $12M" — Variance: 20%. Filed revenue is $10M`, lines[0])
	require.True(t, strings.Contains(lines[1], "Variance: N/A%"))

	require.Equal(t, "Filed revenue is $10M; close", OpenIssues(findings))
}

func TestBuild_ScoresAndDefaults(t *testing.T) {
	submitted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := submitted.Add(1500 * time.Millisecond)

	r := Build(BuildInput{
		ProjectName:  "Acme",
		DocumentName: "deck.pdf",
		SubmittedAt:  submitted,
		Claims:       []Claim{{ClaimID: "C1"}, {ClaimID: "C2"}},
		Findings: []Finding{
			{ClaimID: "C1", RiskLevel: RiskVerified, Sources: []Source{{URL: "https://sec.gov"}}},
			{ClaimID: "C2", RiskLevel: RiskWarning},
		},
		Summary: "fine",
	}, now)

	require.True(t, strings.HasPrefix(r.ReportID, "VER-"))
	require.Equal(t, OverallWarning, r.OverallRisk)
	require.Equal(t, 75, r.ConfidenceScore)
	require.Equal(t, 2, r.TotalClaimsAnalyzed)
	require.Equal(t, 1, r.DataSources)
	require.Equal(t, int64(1500), r.ProcessingTimeMs)
	require.Equal(t, DefaultRecommendations, r.Recommendations)
}

func TestNewID_Format(t *testing.T) {
	id := NewID("JOB", time.UnixMilli(1700000000000))
	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	require.Equal(t, "JOB", parts[0])
	require.Equal(t, "1700000000000", parts[1])
	require.Len(t, parts[2], 6)
}

func TestTruncate_IsRuneSafe(t *testing.T) {
	require.Equal(t, "héll", Truncate("héllo", 4))
	require.Equal(t, "abc", Truncate("abc", 10))
	require.Equal(t, "", Truncate("abc", 0))
}

func TestFormatValue(t *testing.T) {
	require.Equal(t, "N/A", FormatValue(nil, "N/A"))
	require.Equal(t, "12.5", FormatValue(ptr(12.5), "N/A"))
}

func TestClone_SharesNothing(t *testing.T) {
	orig := Report{
		ReportID:        "VER-1-abc",
		Claims:          []Claim{{ClaimID: "C1", NumericalValue: ptr(5)}},
		Findings:        []Finding{{ClaimID: "C1", VariancePercent: ptr(19), Sources: []Source{{URL: "https://a"}}}},
		Recommendations: []string{"Restate revenue."},
	}
	c := orig.Clone()
	if diff := cmp.Diff(orig, c); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	*c.Claims[0].NumericalValue = 7
	*c.Findings[0].VariancePercent = 1
	c.Findings[0].Sources[0].URL = "https://b"
	c.Recommendations[0] = "changed"

	require.Equal(t, 5.0, *orig.Claims[0].NumericalValue)
	require.Equal(t, 19.0, *orig.Findings[0].VariancePercent)
	require.Equal(t, "https://a", orig.Findings[0].Sources[0].URL)
	require.Equal(t, "Restate revenue.", orig.Recommendations[0])
}
