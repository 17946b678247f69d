package classifier

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps keywords found in an item name to a category.
type Rule struct {
	Keywords []string `yaml:"keywords"`
	Major    string   `yaml:"major"`
	Minor    string   `yaml:"minor"`
}

// Rules is the keyword-based fallback classifier. It is intentionally crude:
// it exists so the fan-out can proceed when both remote strategies are
// unavailable, not to be a good classifier.
type Rules struct {
	Rules             []Rule  `yaml:"rules"`
	DefaultConfidence float64 `yaml:"default_confidence"`
}

// LoadRules reads keyword rules from a YAML file. A missing file is not an
// error; it yields an empty rule set that always answers uncategorized.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Rules{}, nil
		}
		return nil, err
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return &rules, nil
}

// Match returns the first rule whose keyword appears in the text, or the
// uncategorized sentinel with confidence 0.
func (r *Rules) Match(text string) Classification {
	lowered := strings.ToLower(text)

	for _, rule := range r.Rules {
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(kw)) {
				confidence := r.DefaultConfidence
				if confidence <= 0 {
					confidence = 0.3
				}
				return Classification{
					Major:      rule.Major,
					Minor:      rule.Minor,
					Confidence: confidence,
					Method:     MethodFallback,
				}
			}
		}
	}

	return Classification{
		Major:      Uncategorized,
		Confidence: 0,
		Method:     MethodFallback,
	}
}
