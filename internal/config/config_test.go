package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// chdirToRepoRoot ensures relative paths like "definitions/..." resolve during tests
func chdirToRepoRoot(t *testing.T) {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	// internal/config/config_test.go -> repo root is two levels up
	root := filepath.Clean(filepath.Join(filepath.Dir(file), "../.."))
	if err := os.Chdir(root); err != nil {
		t.Fatalf("chdir to repo root: %v", err)
	}
}

func TestLoadFromDir_Success(t *testing.T) {
	chdirToRepoRoot(t)
	cfg, err := LoadFromDir("definitions")
	require.NoError(t, err)

	for _, name := range requiredPrompts {
		_, ok := cfg.Prompts[name]
		require.True(t, ok, "prompt %s should be loaded", name)
	}

	extract := cfg.Prompts[PromptExtractClaims]
	require.Equal(t, 4096, extract.MaxTokens)
	for _, name := range []string{PromptAssessVariance, PromptExecutiveSummary, PromptRecommendations} {
		require.Equal(t, 4096, cfg.Prompts[name].MaxTokens, "boss prompt %s", name)
	}
	require.InDelta(t, 0.1, extract.Temperature, 1e-9)
	require.Contains(t, extract.User, "{{ .Document }}")

	brave, ok := cfg.Tools["brave.web_search"]
	require.True(t, ok, "expected brave.web_search tool")
	require.Equal(t, "GET", brave.Method)
	require.Equal(t, "{{ .APIKey }}", brave.Headers["X-Subscription-Token"])

	require.Equal(t, 15000, cfg.Policy.MaxDocumentChars)
	require.Equal(t, 15, cfg.Policy.MaxClaims)
	require.Equal(t, []string{"llm", "brave"}, cfg.Policy.GruntChain)
	require.Equal(t, 10.0, cfg.Policy.Thresholds.CriticalPercent)
	require.Equal(t, 5.0, cfg.Policy.Thresholds.WarningPercent)
}

func TestLoadFromDir_NotFound(t *testing.T) {
	chdirToRepoRoot(t)
	if _, err := LoadFromDir("non-existent-dir-12345"); err == nil {
		t.Fatalf("expected error when loading from non-existent dir")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFromDir_MissingPromptFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "prompts", "p.yaml"), `
prompts:
  - name: extract_claims
    user: "{{ .Document }}"
`)
	writeFile(t, filepath.Join(dir, "tools", "t.yaml"), "tools: []\n")

	_, err := LoadFromDir(dir)
	require.ErrorContains(t, err, "not defined")
}

func TestLoadFromDir_PolicyOverlayKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	prompts := "prompts:\n"
	for _, name := range requiredPrompts {
		prompts += "  - name: " + name + "\n    user: x\n"
	}
	writeFile(t, filepath.Join(dir, "prompts", "p.yaml"), prompts)
	writeFile(t, filepath.Join(dir, "tools", "t.yaml"), "tools: []\n")
	writeFile(t, filepath.Join(dir, "policy", "p.yaml"), "policy:\n  verify_concurrency: 8\n")

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Policy.VerifyConcurrency)
	require.Equal(t, 15, cfg.Policy.MaxClaims)
}

func TestValidate_RejectsInvertedThresholds(t *testing.T) {
	cfg := &Config{Prompts: map[string]Prompt{}, Policy: DefaultPolicy()}
	for _, name := range requiredPrompts {
		cfg.Prompts[name] = Prompt{Name: name, User: "x"}
	}
	require.NoError(t, cfg.Validate())

	cfg.Policy.Thresholds.CriticalPercent = 2
	require.Error(t, cfg.Validate())
}

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "k")
	env, err := LoadEnv()
	require.NoError(t, err)
	require.Positive(t, env.Port)
	require.Equal(t, "k", env.OpenRouterAPIKey)
	require.Equal(t, "https://openrouter.ai/api/v1", env.OpenRouterBaseURL)
	require.Equal(t, "perplexity/sonar-pro", env.GruntModel)
	require.Equal(t, "openrouter", env.LLMProvider)
}
