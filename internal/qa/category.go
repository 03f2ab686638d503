package qa

import "strings"

const (
	CategoryTechnical = "technical"
	CategorySecurity  = "security"
	CategoryPricing   = "pricing"
	CategoryTimeline  = "timeline"
	CategorySupport   = "support"
	CategoryLegal     = "legal"
	CategoryGeneral   = "general"
)

type categoryRule struct {
	category string
	keywords []string
}

// categoryRules is evaluated top to bottom; the first rule with a substring
// hit wins, so the order here is part of the contract.
var categoryRules = []categoryRule{
	{CategoryTechnical, []string{
		"technical", "architecture", "database", "api", "integration", "technology",
		"technisch", "architektur", "datenbank", "schnittstelle", "technologie",
	}},
	{CategorySecurity, []string{
		"security", "authentication", "authorization", "encryption", "compliance",
		"sicherheit", "authentifizierung", "autorisierung", "verschlüsselung", "datenschutz",
	}},
	{CategoryPricing, []string{
		"cost", "price", "budget", "payment", "billing", "license",
		"preis", "kosten", "zahlung", "abrechnung", "lizenz",
	}},
	{CategoryTimeline, []string{
		"timeline", "schedule", "delivery", "deadline", "when", "how long",
		"zeitplan", "lieferung", "frist", "termin", "wann", "wie lange",
	}},
	{CategorySupport, []string{
		"support", "maintenance", "training", "documentation", "help",
		"wartung", "schulung", "dokumentation", "hilfe", "unterstützung",
	}},
	{CategoryLegal, []string{
		"contract", "terms", "liability", "warranty", "legal", "sla",
		"vertrag", "bedingungen", "haftung", "gewährleistung", "rechtlich",
	}},
}

// Categories lists every category in priority order, general last.
func Categories() []string {
	out := make([]string, 0, len(categoryRules)+1)
	for _, r := range categoryRules {
		out = append(out, r.category)
	}
	return append(out, CategoryGeneral)
}

func IsCategory(c string) bool {
	if c == CategoryGeneral {
		return true
	}
	for _, r := range categoryRules {
		if r.category == c {
			return true
		}
	}
	return false
}

// Categorize assigns a category from the question text alone.
func Categorize(question string) string {
	lower := strings.ToLower(question)
	for _, r := range categoryRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return CategoryGeneral
}
