package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/report"
)

// scriptedLLM returns canned answers and records the last request.
type scriptedLLM struct {
	reply string
	err   error
	last  ChatRequest
}

func (s *scriptedLLM) Ping(context.Context) error { return nil }

func (s *scriptedLLM) Chat(_ context.Context, req ChatRequest) (string, error) {
	s.last = req
	return s.reply, s.err
}

var extractPrompt = config.Prompt{
	Name:        config.PromptExtractClaims,
	System:      "Extract at most {{ .MaxClaims }} claims.",
	User:        "DOCUMENT:\n{{ .Document }}",
	Temperature: 0.1,
	MaxTokens:   4096,
}

func TestRender(t *testing.T) {
	req, err := Render(extractPrompt, ExtractInput{Document: "Revenue was $5M.", MaxClaims: 15})
	require.NoError(t, err)
	require.Equal(t, "Extract at most 15 claims.", req.System)
	require.Equal(t, "DOCUMENT:\nRevenue was $5M.", req.User)
	require.Equal(t, 4096, req.MaxTokens)
}

func TestExtractClaims_FencedOutput(t *testing.T) {
	fake := &scriptedLLM{reply: "Here you go:\n```json\n[" +
		`{"claimId":"C1","originalText":"Revenue was $5M","numericalValue":5000000,"metricUnit":"USD","category":"revenue","confidence":"high_stakes"},` +
		`{"claimId":"C1","originalText":"TAM is $2B","numericalValue":2000000000,"metricUnit":"USD","category":"weird","confidence":"?"}` +
		"]\n```"}

	claims, err := ExtractClaims(context.Background(), fake, extractPrompt, ExtractInput{Document: "doc", MaxClaims: 15})
	require.NoError(t, err)
	require.Len(t, claims, 2)
	require.Equal(t, "C1", claims[0].ClaimID)
	require.Equal(t, "C2", claims[1].ClaimID)
	require.Equal(t, report.CategoryOther, claims[1].Category)
	require.Equal(t, report.ConfidenceMedium, claims[1].Confidence)
	require.Equal(t, 2e9, *claims[1].NumericalValue)
}

func TestExtractClaims_Unparseable(t *testing.T) {
	fake := &scriptedLLM{reply: "I could not find any claims."}
	_, err := ExtractClaims(context.Background(), fake, extractPrompt, ExtractInput{Document: "doc"})
	require.ErrorIs(t, err, ErrUnparseable)
}

func TestExtractClaims_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	fake := &scriptedLLM{err: boom}
	_, err := ExtractClaims(context.Background(), fake, extractPrompt, ExtractInput{Document: "doc"})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrUnparseable)
}

func TestAssessVariance_LooseNumbers(t *testing.T) {
	p := config.Prompt{
		Name: config.PromptAssessVariance,
		User: "{{ .Claim.OriginalText }} = {{ .Value }} {{ .Claim.MetricUnit }} vs {{ .Answer }}",
	}
	fake := &scriptedLLM{reply: `{"verifiedValue":"4,200,000","verifiedText":"$4.2M","variancePercent":"19.05%","riskLevel":"critical","explanation":"overstated"}`}
	claim := report.Claim{ClaimID: "C1", OriginalText: "Revenue", MetricUnit: "USD"}

	a, err := AssessVariance(context.Background(), fake, p, AssessInput{Claim: claim, Value: "5000000", Answer: "4.2M"})
	require.NoError(t, err)
	require.Equal(t, "Revenue = 5000000 USD vs 4.2M", fake.last.User)
	require.Equal(t, 4200000.0, *a.VerifiedValue)
	require.InDelta(t, 19.05, *a.VariancePercent, 1e-9)
	require.Equal(t, "critical", a.RiskLevel)
}

func TestAssessVariance_NullValues(t *testing.T) {
	fake := &scriptedLLM{reply: `{"verifiedValue":null,"variancePercent":"N/A","riskLevel":"unverified","explanation":"no data"}`}
	a, err := AssessVariance(context.Background(), fake, config.Prompt{User: "x"}, AssessInput{})
	require.NoError(t, err)
	require.Nil(t, a.VerifiedValue)
	require.Nil(t, a.VariancePercent)
}

func TestRecommend(t *testing.T) {
	fake := &scriptedLLM{reply: `["Re-check revenue", "  ", "Get audited numbers"]`}
	recs, err := Recommend(context.Background(), fake, config.Prompt{User: "{{ .Critical }}"}, SummaryInput{Critical: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"Re-check revenue", "Get audited numbers"}, recs)
	require.Equal(t, "2", fake.last.User)

	fake.reply = `[]`
	_, err = Recommend(context.Background(), fake, config.Prompt{User: "x"}, SummaryInput{})
	require.ErrorIs(t, err, ErrUnparseable)
}

func TestRecommend_CapsAtFive(t *testing.T) {
	fake := &scriptedLLM{reply: `["a", "b", "c", "d", "e", "f", "g"]`}
	recs, err := Recommend(context.Background(), fake, config.Prompt{User: "x"}, SummaryInput{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, recs)
}

func TestSummarize(t *testing.T) {
	fake := &scriptedLLM{reply: "  The deck overstates revenue.  "}
	out, err := Summarize(context.Background(), fake, config.Prompt{User: "{{ range .KeyFindings }}{{ . }}{{ end }}"},
		SummaryInput{KeyFindings: []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, "The deck overstates revenue.", out)
	require.Equal(t, "ab", fake.last.User)

	fake.reply = "   "
	_, err = Summarize(context.Background(), fake, config.Prompt{User: "x"}, SummaryInput{})
	require.ErrorIs(t, err, ErrUnparseable)
}
