// Package report holds the Veritas domain model: the claims the Boss extracts,
// the findings the grunts produce and the risk report built from both.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryRevenue     Category = "revenue"
	CategoryMarketSize  Category = "market_size"
	CategoryCustomer    Category = "customer"
	CategoryGrowth      Category = "growth"
	CategoryCost        Category = "cost"
	CategoryDemographic Category = "demographic"
	CategoryOther       Category = "other"
)

type Confidence string

const (
	ConfidenceHighStakes Confidence = "high_stakes"
	ConfidenceMedium     Confidence = "medium"
	ConfidenceLow        Confidence = "low"
)

type RiskLevel string

const (
	RiskCritical   RiskLevel = "critical"
	RiskWarning    RiskLevel = "warning"
	RiskVerified   RiskLevel = "verified"
	RiskUnverified RiskLevel = "unverified"
)

// Valid reports whether r is one of the four known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskCritical, RiskWarning, RiskVerified, RiskUnverified:
		return true
	}
	return false
}

type OverallRisk string

const (
	OverallCritical OverallRisk = "critical"
	OverallWarning  OverallRisk = "warning"
	OverallClean    OverallRisk = "clean"
)

type Claim struct {
	ClaimID        string     `json:"claimId"`
	OriginalText   string     `json:"originalText"`
	NumericalValue *float64   `json:"numericalValue"`
	MetricUnit     string     `json:"metricUnit"`
	Category       Category   `json:"category"`
	Confidence     Confidence `json:"confidence"`
	SourceLocation string     `json:"sourceLocation"`
}

type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Finding is the verification outcome for one claim.
type Finding struct {
	ClaimID         string    `json:"claimId"`
	VerifiedValue   *float64  `json:"verifiedValue"`
	VerifiedText    string    `json:"verifiedText"`
	Sources         []Source  `json:"sources"`
	VariancePercent *float64  `json:"variancePercent"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	Explanation     string    `json:"explanation"`
}

type Report struct {
	ReportID            string      `json:"reportId"`
	ProjectName         string      `json:"projectName"`
	DocumentName        string      `json:"documentName"`
	SubmittedAt         time.Time   `json:"submittedAt"`
	CompletedAt         time.Time   `json:"completedAt"`
	OverallRisk         OverallRisk `json:"overallRisk"`
	ConfidenceScore     int         `json:"confidenceScore"`
	Summary             string      `json:"summary"`
	Claims              []Claim     `json:"claims"`
	Findings            []Finding   `json:"findings"`
	Recommendations     []string    `json:"recommendations"`
	TotalClaimsAnalyzed int         `json:"totalClaimsAnalyzed"`
	CriticalErrors      int         `json:"criticalErrors"`
	Warnings            int         `json:"warnings"`
	Verified            int         `json:"verified"`
	Unverified          int         `json:"unverified"`
	DataSources         int         `json:"dataSources"`
	ProcessingTimeMs    int64       `json:"processingTimeMs"`
}

// Summary is the short listing form used by /api/reports.
type Summary struct {
	ReportID        string      `json:"reportId"`
	ProjectName     string      `json:"projectName"`
	DocumentName    string      `json:"documentName"`
	OverallRisk     OverallRisk `json:"overallRisk"`
	ConfidenceScore int         `json:"confidenceScore"`
	CriticalErrors  int         `json:"criticalErrors"`
	Warnings        int         `json:"warnings"`
	Verified        int         `json:"verified"`
	CompletedAt     time.Time   `json:"completedAt"`
}

func (r Report) Summarize() Summary {
	return Summary{
		ReportID:        r.ReportID,
		ProjectName:     r.ProjectName,
		DocumentName:    r.DocumentName,
		OverallRisk:     r.OverallRisk,
		ConfidenceScore: r.ConfidenceScore,
		CriticalErrors:  r.CriticalErrors,
		Warnings:        r.Warnings,
		Verified:        r.Verified,
		CompletedAt:     r.CompletedAt,
	}
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Clone returns a copy of r that shares no slices or pointers with it.
func (r Report) Clone() Report {
	if r.Claims != nil {
		claims := make([]Claim, len(r.Claims))
		for i, c := range r.Claims {
			c.NumericalValue = cloneFloat(c.NumericalValue)
			claims[i] = c
		}
		r.Claims = claims
	}
	if r.Findings != nil {
		findings := make([]Finding, len(r.Findings))
		for i, f := range r.Findings {
			f.VerifiedValue = cloneFloat(f.VerifiedValue)
			f.VariancePercent = cloneFloat(f.VariancePercent)
			if f.Sources != nil {
				f.Sources = append([]Source{}, f.Sources...)
			}
			findings[i] = f
		}
		r.Findings = findings
	}
	if r.Recommendations != nil {
		r.Recommendations = append([]string{}, r.Recommendations...)
	}
	return r
}

// NewID returns "<prefix>-<unix millis>-<short random suffix>".
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}

// FormatValue renders an optional number the way prompts and events show it.
func FormatValue(v *float64, missing string) string {
	if v == nil {
		return missing
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Stats are the per-level counts a report is scored from.
type Stats struct {
	Critical    int
	Warnings    int
	Verified    int
	Unverified  int
	DataSources int
	Total       int
}

// Tally counts findings per risk level and distinct source URLs.
func Tally(findings []Finding) Stats {
	s := Stats{Total: len(findings)}
	urls := make(map[string]struct{})
	for _, f := range findings {
		switch f.RiskLevel {
		case RiskCritical:
			s.Critical++
		case RiskWarning:
			s.Warnings++
		case RiskVerified:
			s.Verified++
		default:
			s.Unverified++
		}
		for _, src := range f.Sources {
			urls[src.URL] = struct{}{}
		}
	}
	s.DataSources = len(urls)
	return s
}

func (s Stats) OverallRisk() OverallRisk {
	switch {
	case s.Critical > 0:
		return OverallCritical
	case s.Warnings > 0:
		return OverallWarning
	default:
		return OverallClean
	}
}

// ConfidenceScore weights verified findings fully and warnings by half.
func (s Stats) ConfidenceScore() int {
	total := s.Total
	if total < 1 {
		total = 1
	}
	return int(math.Round((float64(s.Verified) + float64(s.Warnings)*0.5) / float64(total) * 100))
}

// KeyFindings lists the critical and warning findings in prompt form.
func KeyFindings(claims []Claim, findings []Finding) []string {
	byID := make(map[string]Claim, len(claims))
	for _, c := range claims {
		byID[c.ClaimID] = c
	}
	var out []string
	for _, f := range findings {
		if f.RiskLevel != RiskCritical && f.RiskLevel != RiskWarning {
			continue
		}
		out = append(out, fmt.Sprintf("- %s: %q — Variance: %s%%. %s",
			strings.ToUpper(string(f.RiskLevel)), byID[f.ClaimID].OriginalText,
			FormatValue(f.VariancePercent, "N/A"), f.Explanation))
	}
	return out
}

// OpenIssues joins the explanations of every finding that is not verified.
func OpenIssues(findings []Finding) string {
	var parts []string
	for _, f := range findings {
		if f.RiskLevel != RiskVerified {
			parts = append(parts, f.Explanation)
		}
	}
	return strings.Join(parts, "; ")
}

var DefaultRecommendations = []string{
	"Review all flagged claims before proceeding with investment decisions.",
	"Verify critical financial projections with independent third-party data.",
	"Request updated source data for any claims marked as unverified.",
}

// FallbackSummary is used when the Boss cannot write the executive summary.
func FallbackSummary(documentName string, s Stats) string {
	return fmt.Sprintf("Verification of %s analyzed %d claims: %d critical errors, %d warnings, "+
		"%d verified and %d unverified. The executive summary could not be generated; "+
		"review the individual findings below.",
		documentName, s.Total, s.Critical, s.Warnings, s.Verified, s.Unverified)
}

// BuildInput is everything the Analyst gathers before assembling a report.
type BuildInput struct {
	ProjectName     string
	DocumentName    string
	SubmittedAt     time.Time
	Claims          []Claim
	Findings        []Finding
	Summary         string
	Recommendations []string
}

// Build assembles the final report and scores it.
func Build(in BuildInput, now time.Time) Report {
	s := Tally(in.Findings)
	recs := in.Recommendations
	if len(recs) == 0 {
		recs = append([]string(nil), DefaultRecommendations...)
	}
	return Report{
		ReportID:            NewID("VER", now),
		ProjectName:         in.ProjectName,
		DocumentName:        in.DocumentName,
		SubmittedAt:         in.SubmittedAt,
		CompletedAt:         now.UTC(),
		OverallRisk:         s.OverallRisk(),
		ConfidenceScore:     s.ConfidenceScore(),
		Summary:             in.Summary,
		Claims:              in.Claims,
		Findings:            in.Findings,
		Recommendations:     recs,
		TotalClaimsAnalyzed: len(in.Claims),
		CriticalErrors:      s.Critical,
		Warnings:            s.Warnings,
		Verified:            s.Verified,
		Unverified:          s.Unverified,
		DataSources:         s.DataSources,
		ProcessingTimeMs:    now.Sub(in.SubmittedAt).Milliseconds(),
	}
}
