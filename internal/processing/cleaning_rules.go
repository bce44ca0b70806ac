package processing

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	multiSpace   = regexp.MustCompile(`[ \x{00A0}]{2,}`)
	trailingWS   = regexp.MustCompile(`(?m)[ \t]+$`)
	excessBlanks = regexp.MustCompile(`\n{3,}`)

	mojibake = strings.NewReplacer(
		"â€™", "'",
		"â€œ", "\"",
		"â€\u009d", "\"",
		"â€“", "-",
		"â€”", "-",
		"Â ", " ",
	)

	typography = strings.NewReplacer(
		"\uFEFF", "", // byte order mark
		"\u200B", "", // zero-width space
		"\u200C", "",
		"\u200D", "",
		"\uFFFD", "", // replacement character
		"\u00AD", "", // soft hyphen
		"\u00A0", " ",
		"\u2018", "'",
		"\u2019", "'",
		"\u201C", "\"",
		"\u201D", "\"",
		"\u2013", "-",
		"\u2014", "-",
	)
)

// EncodingNormalizationRule normalizes character encoding issues
type EncodingNormalizationRule struct{}

func (r *EncodingNormalizationRule) Name() string {
	return "encoding_normalization"
}

func (r *EncodingNormalizationRule) Applicable(docType string) bool {
	return true
}

func (r *EncodingNormalizationRule) Apply(content string) (string, error) {
	cleaned := mojibake.Replace(content)
	cleaned = typography.Replace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")

	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' || r == '\f' || r == '\v' {
			return '\n'
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)

	return cleaned, nil
}

// WhitespaceNormalizationRule normalizes whitespace while keeping line and
// paragraph structure.
type WhitespaceNormalizationRule struct{}

func (r *WhitespaceNormalizationRule) Name() string {
	return "whitespace_normalization"
}

func (r *WhitespaceNormalizationRule) Applicable(docType string) bool {
	return true
}

func (r *WhitespaceNormalizationRule) Apply(content string) (string, error) {
	normalized := multiSpace.ReplaceAllString(content, " ")
	normalized = trailingWS.ReplaceAllString(normalized, "")
	normalized = excessBlanks.ReplaceAllString(normalized, "\n\n")
	return strings.TrimSpace(normalized), nil
}

// DuplicateLineRemovalRule removes duplicate consecutive lines
type DuplicateLineRemovalRule struct{}

func (r *DuplicateLineRemovalRule) Name() string {
	return "duplicate_line_removal"
}

func (r *DuplicateLineRemovalRule) Applicable(docType string) bool {
	return true
}

func (r *DuplicateLineRemovalRule) Apply(content string) (string, error) {
	lines := strings.Split(content, "\n")
	if len(lines) <= 1 {
		return content, nil
	}

	result := make([]string, 0, len(lines))
	lastLine := ""

	for _, line := range lines {
		trimmedLine := strings.TrimSpace(line)
		if trimmedLine != lastLine || trimmedLine == "" {
			result = append(result, line)
		}
		lastLine = trimmedLine
	}

	return strings.Join(result, "\n"), nil
}
