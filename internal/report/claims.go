package report

import (
	"fmt"
	"strings"
)

func normalizeCategory(c Category) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(string(c)))); c {
	case CategoryRevenue, CategoryMarketSize, CategoryCustomer, CategoryGrowth,
		CategoryCost, CategoryDemographic, CategoryOther:
		return c
	}
	return CategoryOther
}

func normalizeConfidence(c Confidence) Confidence {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(string(c)))); c {
	case ConfidenceHighStakes, ConfidenceMedium, ConfidenceLow:
		return c
	}
	return ConfidenceMedium
}

// NormalizeClaims drops claims without text, fills missing or duplicate ids,
// coerces unknown enum values and keeps at most max claims.
func NormalizeClaims(in []Claim, max int) []Claim {
	out := make([]Claim, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		if max > 0 && len(out) == max {
			break
		}
		c.OriginalText = strings.TrimSpace(c.OriginalText)
		if c.OriginalText == "" {
			continue
		}
		c.ClaimID = strings.TrimSpace(c.ClaimID)
		for n := len(out) + 1; c.ClaimID == "" || seen[c.ClaimID]; n++ {
			c.ClaimID = fmt.Sprintf("C%d", n)
		}
		seen[c.ClaimID] = true
		c.Category = normalizeCategory(c.Category)
		c.Confidence = normalizeConfidence(c.Confidence)
		out = append(out, c)
	}
	return out
}
