package processing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentCleanerBasic(t *testing.T) {
	cleaner := NewContentCleaner()

	input := "  Quarterly   Report  \r\n" +
		"Page header\nPage header\n\n\n\n" +
		"“Smart quotes” and it’s fine — really.\x00\n" +
		"Broken â€™s encoding� and spaces.\t\n"

	cleaned, result, err := cleaner.Clean("pdf", input)
	require.NoError(t, err)

	assert.Equal(t, "Quarterly Report\nPage header\n\n\"Smart quotes\" and it's fine - really.\nBroken 's encoding and spaces.", cleaned)
	assert.Less(t, result.CleanedLength, result.OriginalLength)
	assert.Equal(t, result.OriginalLength-result.CleanedLength, result.BytesRemoved)
	assert.ElementsMatch(t, []string{"encoding_normalization", "whitespace_normalization", "duplicate_line_removal"}, result.RulesApplied)
}

func TestContentCleanerKeepsTabsAndParagraphs(t *testing.T) {
	cleaner := NewContentCleaner()

	cleaned, result, err := cleaner.Clean("docx", "Name\tValue\n\nSecond paragraph")
	require.NoError(t, err)
	assert.Equal(t, "Name\tValue\n\nSecond paragraph", cleaned)
	assert.Empty(t, result.RulesApplied)
}

func TestContentCleanerDisableRule(t *testing.T) {
	cleaner := NewContentCleaner()
	cleaner.DisableRule("duplicate_line_removal")

	cleaned, _, err := cleaner.Clean("txt", "same\nsame")
	require.NoError(t, err)
	assert.Equal(t, "same\nsame", cleaned)
	assert.NotContains(t, cleaner.EnabledRules(), "duplicate_line_removal")

	cleaner.EnableRule("duplicate_line_removal")
	cleaned, _, err = cleaner.Clean("txt", "same\nsame")
	require.NoError(t, err)
	assert.Equal(t, "same", cleaned)
}

type failingRule struct{}

func (failingRule) Name() string                   { return "failing" }
func (failingRule) Applicable(docType string) bool { return docType == "txt" }
func (failingRule) Apply(string) (string, error)   { return "", errors.New("broken rule") }

func TestContentCleanerFailingRule(t *testing.T) {
	cleaner := NewContentCleaner()
	cleaner.AddRule(failingRule{})

	cleaned, result, err := cleaner.Clean("txt", "text")
	require.NoError(t, err)
	assert.Equal(t, "text", cleaned)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "broken rule")

	_, result, err = cleaner.Clean("pdf", "text")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	cleaner.SetStrictMode(true)
	_, _, err = cleaner.Clean("txt", "text")
	assert.Error(t, err)
}

func TestEnabledRulesOrder(t *testing.T) {
	assert.Equal(t, []string{
		"encoding_normalization",
		"whitespace_normalization",
		"duplicate_line_removal",
	}, NewContentCleaner().EnabledRules())
}

func TestDuplicateLineRemovalKeepsBlankLines(t *testing.T) {
	out, err := (&DuplicateLineRemovalRule{}).Apply("a\n\n\nb\nb\n b ")
	require.NoError(t, err)
	assert.Equal(t, "a\n\n\nb", out)
}
