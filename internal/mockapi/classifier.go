package mockapi

import (
	"strings"

	"budgetwise/internal/core"
)

// classification is what the rule engine decided for one expense.
type classification struct {
	Category   core.Category
	Confidence float64
	Method     string
}

// keywordRules are matched against lowercase descriptions in order; the
// first hit wins.
var keywordRules = []struct {
	category core.Category
	words    []string
}{
	{core.Savings, []string{"saving", "invest", "etf", "pension", "retirement", "deposit", "emergency fund", "stock"}},
	{core.Needs, []string{"rent", "mortgage", "grocer", "supermarket", "electric", "utilit", "water bill", "gas bill", "insurance", "pharmacy", "doctor", "medical", "bus", "train", "fuel", "internet", "phone bill", "tuition"}},
	{core.Wants, []string{"coffee", "restaurant", "netflix", "spotify", "cinema", "movie", "bar", "shopping", "clothes", "game", "travel", "takeaway", "concert", "gym"}},
}

// largeAmount is the point above which an unmatched expense is assumed to be
// a fixed cost.
const largeAmount = 500

func classify(description string, amount float64) classification {
	desc := strings.ToLower(description)
	for _, rule := range keywordRules {
		for _, w := range rule.words {
			if strings.Contains(desc, w) {
				// Longer keywords are more specific.
				conf := 0.85 + float64(min(len(w), 10))/100
				return classification{Category: rule.category, Confidence: conf, Method: "rule"}
			}
		}
	}
	if amount >= largeAmount {
		return classification{Category: core.Needs, Confidence: 0.62, Method: "heuristic"}
	}
	return classification{Category: core.Wants, Confidence: 0.55, Method: "heuristic"}
}
