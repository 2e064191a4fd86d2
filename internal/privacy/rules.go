package privacy

import "regexp"

// GetDefaultRules returns the built-in sensitive text patterns in check order
func GetDefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Name:    "credit_card",
			Pattern: regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
			Enabled: true,
		},
		{
			Name:    "ssn",
			Pattern: regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`),
			Enabled: true,
		},
		{
			Name:    "email",
			Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
			Enabled: true,
		},
		{
			Name:    "phone",
			Pattern: regexp.MustCompile(`\b(?:\+\d{1,2}\s)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`),
			Enabled: true,
		},
		{
			Name:    "date",
			Pattern: regexp.MustCompile(`\b\d{1,2}[\/\-]\d{1,2}[\/\-]\d{2,4}\b`),
			Enabled: true,
		},
	}
}
