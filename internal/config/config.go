package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt names the pipeline looks up in Config.Prompts.
const (
	PromptExtractClaims    = "extract_claims"
	PromptGruntQuery       = "grunt_query"
	PromptGruntResearch    = "grunt_research"
	PromptAssessVariance   = "assess_variance"
	PromptExecutiveSummary = "executive_summary"
	PromptRecommendations  = "recommendations"
)

var requiredPrompts = []string{
	PromptExtractClaims,
	PromptGruntQuery,
	PromptGruntResearch,
	PromptAssessVariance,
	PromptExecutiveSummary,
	PromptRecommendations,
}

// Prompt is a Boss or Grunt prompt. System and User are text/template sources.
type Prompt struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Tool is an HTTP call a grunt can make. URL and header values are templates.
type Tool struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"` // only http for now
	Method    string            `yaml:"method"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	TimeoutMs int               `yaml:"timeout"`
}

type Thresholds struct {
	CriticalPercent float64 `yaml:"critical_percent"`
	WarningPercent  float64 `yaml:"warning_percent"`
}

type Policy struct {
	MaxDocumentChars  int        `yaml:"max_document_chars"`
	MaxClaims         int        `yaml:"max_claims"`
	VerifyConcurrency int        `yaml:"verify_concurrency"`
	EventWindow       int        `yaml:"event_window"`
	GruntChain        []string   `yaml:"grunt_chain"`
	Thresholds        Thresholds `yaml:"thresholds"`
}

// DefaultPolicy mirrors the limits the pipeline has always used.
func DefaultPolicy() Policy {
	return Policy{
		MaxDocumentChars:  15000,
		MaxClaims:         15,
		VerifyConcurrency: 4,
		EventWindow:       20,
		GruntChain:        []string{"llm", "brave"},
		Thresholds: Thresholds{
			CriticalPercent: 10,
			WarningPercent:  5,
		},
	}
}

type Config struct {
	Prompts map[string]Prompt
	Tools   map[string]Tool
	Policy  Policy
}

func LoadFromDir(base string) (*Config, error) {
	cfg := &Config{
		Prompts: make(map[string]Prompt),
		Tools:   make(map[string]Tool),
		Policy:  DefaultPolicy(),
	}

	if err := loadPromptsDir(filepath.Join(base, "prompts"), cfg); err != nil {
		return nil, err
	}
	if err := loadToolsDir(filepath.Join(base, "tools"), cfg); err != nil {
		return nil, err
	}
	if err := loadPolicyDir(filepath.Join(base, "policy"), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every prompt the pipeline needs exists and that the
// policy values are usable.
func (c *Config) Validate() error {
	for _, name := range requiredPrompts {
		p, ok := c.Prompts[name]
		if !ok {
			return fmt.Errorf("prompt %s not defined", name)
		}
		if strings.TrimSpace(p.User) == "" {
			return fmt.Errorf("prompt %s has an empty user template", name)
		}
	}
	p := c.Policy
	if p.MaxDocumentChars <= 0 || p.MaxClaims <= 0 || p.VerifyConcurrency <= 0 || p.EventWindow <= 0 {
		return fmt.Errorf("policy limits must be positive: %+v", p)
	}
	if p.Thresholds.WarningPercent < 0 || p.Thresholds.CriticalPercent < p.Thresholds.WarningPercent {
		return fmt.Errorf("policy thresholds out of order: warning=%v critical=%v",
			p.Thresholds.WarningPercent, p.Thresholds.CriticalPercent)
	}
	return nil
}

// readYAMLDir decodes every regular file in dir into a fresh value produced by
// newRaw and hands it to apply.
func readYAMLDir(dir string, newRaw func() any, apply func(raw any)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		raw := newRaw()
		if err := yaml.Unmarshal(data, raw); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		apply(raw)
	}
	return nil
}

type promptsFile struct {
	Prompts []Prompt `yaml:"prompts"`
}

func loadPromptsDir(dir string, cfg *Config) error {
	return readYAMLDir(dir, func() any { return &promptsFile{} }, func(raw any) {
		for _, p := range raw.(*promptsFile).Prompts {
			cfg.Prompts[p.Name] = p
		}
	})
}

type toolsFile struct {
	Tools []Tool `yaml:"tools"`
}

func loadToolsDir(dir string, cfg *Config) error {
	return readYAMLDir(dir, func() any { return &toolsFile{} }, func(raw any) {
		for _, t := range raw.(*toolsFile).Tools {
			cfg.Tools[t.Name] = t
		}
	})
}

type policyFile struct {
	Policy *Policy `yaml:"policy"`
}

// loadPolicyDir overlays policy files onto the defaults. The directory is
// optional.
func loadPolicyDir(dir string, cfg *Config) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return readYAMLDir(dir, func() any { return &policyFile{Policy: &cfg.Policy} }, func(any) {})
}
