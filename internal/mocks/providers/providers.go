// Package providers serves deterministic stand-ins for OpenRouter and the
// Brave search API so the pipeline can run end to end without network access.
package providers

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ccastromar/veritas/internal/logx"
)

// Paths the fakes answer on. Point OPENROUTER_BASE_URL at <server>/api/v1 and
// BRAVE_BASE_URL at <server>.
const (
	OpenRouterPrefix = "/api/v1"
	BraveSearchPath  = "/res/v1/web/search"
)

// RegisterHandlers mounts both fakes on mux.
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET "+OpenRouterPrefix+"/models", listModels)
	mux.HandleFunc("POST "+OpenRouterPrefix+"/chat/completions", chatCompletions)
	mux.HandleFunc("GET "+BraveSearchPath, braveSearch)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func authorized(r *http.Request) bool {
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")) != ""
}

func listModels(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing api key"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": []map[string]string{
			{"id": "anthropic/claude-sonnet-4-20250514"},
			{"id": "perplexity/sonar-pro"},
		},
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func (c chatRequest) content(role string) string {
	for _, m := range c.Messages {
		if m.Role == role {
			return m.Content
		}
	}
	return ""
}

func chatCompletions(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing api key"})
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	system, user := req.content("system"), req.content("user")

	var answer string
	switch {
	case strings.Contains(system, "senior business analyst"):
		answer = extractAnswer(user)
	case strings.Contains(system, "risk assessor"):
		answer = assessAnswer(user)
	case strings.Contains(system, "consulting partner"):
		answer = summaryAnswer(user)
	case strings.Contains(system, "strategic advisor"):
		answer = `["Restate the overstated figures using audited numbers.",` +
			`"Attach primary sources to every market sizing claim.",` +
			`"Re-run verification after the document is revised."]`
	default:
		answer = researchAnswer(user)
	}
	logx.Debug("MockOpenRouter", "model=%s answered %d chars", req.Model, len(answer))

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    "gen-mock",
		"model": req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       chatMessage{Role: "assistant", Content: answer},
		}},
	})
}

var numberRe = regexp.MustCompile(`(\$)?(\d[\d,]*(?:\.\d+)?)\s*(%|[KMB]\b|thousand|million|billion)?`)

var scale = map[string]float64{
	"K": 1e3, "thousand": 1e3,
	"M": 1e6, "million": 1e6,
	"B": 1e9, "billion": 1e9,
}

// Claim mirrors the JSON the Boss is asked to produce for each claim.
type Claim struct {
	ClaimID        string   `json:"claimId"`
	OriginalText   string   `json:"originalText"`
	NumericalValue *float64 `json:"numericalValue"`
	MetricUnit     string   `json:"metricUnit"`
	Category       string   `json:"category"`
	Confidence     string   `json:"confidence"`
	SourceLocation string   `json:"sourceLocation"`
}

func category(s string) string {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "revenue"):
		return "revenue"
	case strings.Contains(l, "market"):
		return "market_size"
	case strings.Contains(l, "customer") || strings.Contains(l, "user"):
		return "customer"
	case strings.Contains(l, "growth") || strings.Contains(l, "grew"):
		return "growth"
	case strings.Contains(l, "cost") || strings.Contains(l, "spend"):
		return "cost"
	}
	return "other"
}

var sentenceRe = regexp.MustCompile(`[.!?]\s+`)

// Claims returns one claim per sentence of document that carries a number.
func Claims(document string) []Claim {
	var out []Claim
	for line, text := range strings.Split(document, "\n") {
		for _, s := range sentenceRe.Split(text, -1) {
			s = strings.TrimSpace(s)
			m := numberRe.FindStringSubmatch(s)
			if m == nil {
				continue
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
			if err != nil {
				continue
			}
			if mult, ok := scale[m[3]]; ok {
				v *= mult
			}
			unit := "count"
			switch {
			case m[3] == "%":
				unit = "percent"
			case m[1] == "$":
				unit = "USD"
			}
			c := category(s)
			conf := "medium"
			if c == "revenue" || c == "market_size" {
				conf = "high_stakes"
			}
			out = append(out, Claim{
				ClaimID:        fmt.Sprintf("C%d", len(out)+1),
				OriginalText:   s,
				NumericalValue: &v,
				MetricUnit:     unit,
				Category:       c,
				Confidence:     conf,
				SourceLocation: fmt.Sprintf("Line %d", line+1),
			})
		}
	}
	return out
}

const extractLead = "Analyze this document and extract all significant numerical claims:"

func extractAnswer(user string) string {
	doc := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(user), extractLead))
	b, _ := json.MarshalIndent(Claims(doc), "", "  ")
	return "```json\n" + string(b) + "\n```"
}

// Variance is the deterministic variance percentage the fake reports for a
// claim text, between 0 and 20.
func Variance(claimText string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(claimText))
	return float64(h.Sum32() % 21)
}

var (
	claimRe = regexp.MustCompile(`ORIGINAL CLAIM: "(.*)" \(Value: (\S+)`)
	nodata  = "UNVERIFIED"
)

func assessAnswer(user string) string {
	m := claimRe.FindStringSubmatch(user)
	if m == nil || strings.Contains(user, nodata) {
		return `{"verifiedValue":null,"verifiedText":"No data found","variancePercent":null,"riskLevel":"unverified","explanation":"Research returned nothing usable"}`
	}
	value, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return `{"verifiedValue":null,"verifiedText":"Claim has no numeric value","variancePercent":null,"riskLevel":"unverified","explanation":"Nothing to compare"}`
	}
	v := Variance(m[1])
	risk := "verified"
	switch {
	case v > 10:
		risk = "critical"
	case v >= 5:
		risk = "warning"
	}
	b, _ := json.Marshal(map[string]any{
		"verifiedValue":   value * (1 - v/100),
		"verifiedText":    fmt.Sprintf("Public filings show a value %.0f%% below the claim", v),
		"variancePercent": v,
		"riskLevel":       risk,
		"explanation":     fmt.Sprintf("Claim differs from filings by %.0f%%", v),
	})
	return string(b)
}

var documentRe = regexp.MustCompile(`Document: (.*)`)

func summaryAnswer(user string) string {
	name := "the document"
	if m := documentRe.FindStringSubmatch(user); m != nil {
		name = strings.TrimSpace(m[1])
	}
	return fmt.Sprintf("Verification of %s is complete. Figures were checked against public filings and reputable press coverage.", name)
}

func researchAnswer(query string) string {
	return fmt.Sprintf("Findings for %q: figures are reported in https://www.sec.gov/cgi-bin/browse-edgar?company=mock "+
		"and https://www.reuters.com/markets/mock (accessed via mock research).", strings.TrimSpace(query))
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

func braveSearch(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Subscription-Token") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing subscription token"})
		return
	}
	q := r.URL.Query().Get("q")
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 {
		count = 5
	}
	hosts := []string{"www.sec.gov", "www.reuters.com", "www.bloomberg.com", "www.ft.com", "www.wsj.com"}
	results := make([]braveResult, 0, count)
	for i := 0; i < count && i < len(hosts); i++ {
		results = append(results, braveResult{
			Title:       fmt.Sprintf("%s result %d", hosts[i], i+1),
			URL:         "https://" + hosts[i] + "/search?q=" + url.QueryEscape(q),
			Description: "Reported figures related to: " + q,
		})
	}
	logx.Debug("MockBrave", "q=%q results=%d", q, len(results))
	writeJSON(w, http.StatusOK, map[string]any{"web": map[string]any{"results": results}})
}
