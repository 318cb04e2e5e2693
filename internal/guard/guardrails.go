package guard

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/report"
)

var ErrDocumentRequired = errors.New("documentText is required")

var idRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidID reports whether id is safe to use as a job or report key.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}

// ValidateDocument rejects empty documents and documents over maxBytes.
func ValidateDocument(text string, maxBytes int64) error {
	if strings.TrimSpace(text) == "" {
		return ErrDocumentRequired
	}
	if maxBytes > 0 && int64(len(text)) > maxBytes {
		return fmt.Errorf("documentText exceeds %d bytes", maxBytes)
	}
	return nil
}

// ClassifyVariance maps a variance percentage onto a risk level.
// |v| > critical is critical, warning <= |v| <= critical is a warning,
// anything smaller is verified.
func ClassifyVariance(variance float64, th config.Thresholds) report.RiskLevel {
	v := math.Abs(variance)
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return report.RiskUnverified
	case v > th.CriticalPercent:
		return report.RiskCritical
	case v >= th.WarningPercent:
		return report.RiskWarning
	default:
		return report.RiskVerified
	}
}

// ReconcileRisk decides the risk level of a finding. A reported variance
// always wins over the label the Boss picked; without a variance only a
// known label is accepted and a verified label needs a verified value.
func ReconcileRisk(assessed string, variance, verifiedValue *float64, th config.Thresholds) report.RiskLevel {
	if variance != nil {
		return ClassifyVariance(*variance, th)
	}
	level := report.RiskLevel(strings.ToLower(strings.TrimSpace(assessed)))
	if !level.Valid() {
		return report.RiskUnverified
	}
	if level == report.RiskVerified && verifiedValue == nil {
		return report.RiskUnverified
	}
	return level
}
