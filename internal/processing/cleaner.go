package processing

import (
	"fmt"
	"time"
)

// CleaningRule represents a single content cleaning rule
type CleaningRule interface {
	Name() string
	Apply(content string) (string, error)
	Applicable(docType string) bool
}

// CleaningResult contains the results of content cleaning
type CleaningResult struct {
	OriginalLength int           `json:"original_length"`
	CleanedLength  int           `json:"cleaned_length"`
	RulesApplied   []string      `json:"rules_applied"`
	BytesRemoved   int           `json:"bytes_removed"`
	ProcessingTime time.Duration `json:"processing_time"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// ContentCleaner applies rule-based cleaning to extracted text before it is
// shown to the user or sent to the model.
type ContentCleaner struct {
	rules        []CleaningRule
	enabledRules map[string]bool
	strictMode   bool
}

// NewContentCleaner creates a new content cleaner with default rules
func NewContentCleaner() *ContentCleaner {
	cleaner := &ContentCleaner{
		rules:        make([]CleaningRule, 0),
		enabledRules: make(map[string]bool),
	}

	cleaner.AddRule(&EncodingNormalizationRule{})
	cleaner.AddRule(&WhitespaceNormalizationRule{})
	cleaner.AddRule(&DuplicateLineRemovalRule{})

	return cleaner
}

// AddRule adds a custom cleaning rule
func (cc *ContentCleaner) AddRule(rule CleaningRule) {
	cc.rules = append(cc.rules, rule)
	cc.enabledRules[rule.Name()] = true
}

// EnableRule enables a specific rule by name
func (cc *ContentCleaner) EnableRule(ruleName string) {
	cc.enabledRules[ruleName] = true
}

// DisableRule disables a specific rule by name
func (cc *ContentCleaner) DisableRule(ruleName string) {
	cc.enabledRules[ruleName] = false
}

// SetStrictMode makes a failing rule abort the whole cleaning pass.
func (cc *ContentCleaner) SetStrictMode(strict bool) {
	cc.strictMode = strict
}

// Clean runs the enabled rules applicable to docType over text.
func (cc *ContentCleaner) Clean(docType, text string) (string, *CleaningResult, error) {
	start := time.Now()
	cleaned := text
	result := &CleaningResult{
		OriginalLength: len(text),
		RulesApplied:   []string{},
	}

	for _, rule := range cc.rules {
		if !cc.enabledRules[rule.Name()] || !rule.Applicable(docType) {
			continue
		}

		after, err := rule.Apply(cleaned)
		if err != nil {
			if cc.strictMode {
				return text, nil, fmt.Errorf("cleaning failed in strict mode: rule %s: %w", rule.Name(), err)
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("Rule %s failed: %v", rule.Name(), err))
			continue
		}

		if after != cleaned {
			cleaned = after
			result.RulesApplied = append(result.RulesApplied, rule.Name())
		}
	}

	result.CleanedLength = len(cleaned)
	result.BytesRemoved = result.OriginalLength - result.CleanedLength
	result.ProcessingTime = time.Since(start)
	return cleaned, result, nil
}

// EnabledRules lists the enabled rules in the order they run.
func (cc *ContentCleaner) EnabledRules() []string {
	enabled := make([]string, 0)
	for _, rule := range cc.rules {
		if cc.enabledRules[rule.Name()] {
			enabled = append(enabled, rule.Name())
		}
	}
	return enabled
}
