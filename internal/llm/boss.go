package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/report"
	"github.com/ccastromar/veritas/internal/tools"
)

// Render builds a ChatRequest from a prompt definition and template data.
func Render(p config.Prompt, data any) (ChatRequest, error) {
	system, err := tools.RenderTemplateString(p.System, data)
	if err != nil {
		return ChatRequest{}, fmt.Errorf("prompt %s system: %w", p.Name, err)
	}
	user, err := tools.RenderTemplateString(p.User, data)
	if err != nil {
		return ChatRequest{}, fmt.Errorf("prompt %s user: %w", p.Name, err)
	}
	return ChatRequest{
		System:      strings.TrimSpace(system),
		User:        strings.TrimSpace(user),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}, nil
}

type ExtractInput struct {
	Document  string
	MaxClaims int
}

// ExtractClaims asks the Boss for the numerical claims in a document.
// A transport error is returned as is; output without a usable JSON array
// wraps ErrUnparseable.
func ExtractClaims(ctx context.Context, c LLMClient, p config.Prompt, in ExtractInput) ([]report.Claim, error) {
	req, err := Render(p, in)
	if err != nil {
		return nil, err
	}
	raw, err := c.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("boss extract: %w", err)
	}
	var claims []report.Claim
	if err := DecodeArray(raw, &claims); err != nil {
		return nil, err
	}
	return report.NormalizeClaims(claims, in.MaxClaims), nil
}

type AssessInput struct {
	Claim           report.Claim
	Value           string
	Answer          string
	CriticalPercent float64
	WarningPercent  float64
}

// Assessment is the Boss verdict on one claim before guardrails run.
type Assessment struct {
	VerifiedValue   *float64 `json:"verifiedValue"`
	VerifiedText    string   `json:"verifiedText"`
	VariancePercent *float64 `json:"variancePercent"`
	RiskLevel       string   `json:"riskLevel"`
	Explanation     string   `json:"explanation"`
}

// UnmarshalJSON tolerates numbers sent as strings ("12.5", "12.5%", "N/A").
func (a *Assessment) UnmarshalJSON(b []byte) error {
	var raw struct {
		VerifiedValue   json.RawMessage `json:"verifiedValue"`
		VerifiedText    string          `json:"verifiedText"`
		VariancePercent json.RawMessage `json:"variancePercent"`
		RiskLevel       string          `json:"riskLevel"`
		Explanation     string          `json:"explanation"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.VerifiedValue = looseNumber(raw.VerifiedValue)
	a.VariancePercent = looseNumber(raw.VariancePercent)
	a.VerifiedText = raw.VerifiedText
	a.RiskLevel = raw.RiskLevel
	a.Explanation = raw.Explanation
	return nil
}

func looseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	s = strings.ReplaceAll(s, ",", "")
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &f
	}
	return nil
}

// AssessVariance asks the Boss to compare a claim with the grunt findings.
func AssessVariance(ctx context.Context, c LLMClient, p config.Prompt, in AssessInput) (Assessment, error) {
	req, err := Render(p, in)
	if err != nil {
		return Assessment{}, err
	}
	raw, err := c.Chat(ctx, req)
	if err != nil {
		return Assessment{}, fmt.Errorf("boss assess: %w", err)
	}
	var a Assessment
	if err := DecodeObject(raw, &a); err != nil {
		return Assessment{}, err
	}
	return a, nil
}

type SummaryInput struct {
	DocumentName string
	Total        int
	Critical     int
	Warnings     int
	Verified     int
	Unverified   int
	KeyFindings  []string
	Issues       string
}

// Summarize asks the Boss for the executive summary.
func Summarize(ctx context.Context, c LLMClient, p config.Prompt, in SummaryInput) (string, error) {
	req, err := Render(p, in)
	if err != nil {
		return "", err
	}
	out, err := c.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("boss summary: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty summary", ErrUnparseable)
	}
	return out, nil
}

// MaxRecommendations caps what Recommend returns; the prompt asks for 3 to 5.
const MaxRecommendations = 5

// Recommend asks the Boss for a JSON array of recommendations.
func Recommend(ctx context.Context, c LLMClient, p config.Prompt, in SummaryInput) ([]string, error) {
	req, err := Render(p, in)
	if err != nil {
		return nil, err
	}
	raw, err := c.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("boss recommendations: %w", err)
	}
	var recs []string
	if err := DecodeArray(raw, &recs); err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no recommendations", ErrUnparseable)
	}
	if len(out) > MaxRecommendations {
		out = out[:MaxRecommendations]
	}
	return out, nil
}
