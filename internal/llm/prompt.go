package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Caia-Tech/smartmeta/pkg/metadata"
)

// SystemPrompt is sent as the system message of every request.
const SystemPrompt = "You are a helpful assistant."

// BuildPrompt renders the metadata request for content.
func BuildPrompt(content string) string {
	var b strings.Builder
	b.WriteString("You are a document analysis assistant.\n\n")
	b.WriteString("Extract the following metadata from the document content below:\n\n")
	for i, field := range metadata.Fields {
		fmt.Fprintf(&b, "%d. %s\n", i+1, field)
	}
	b.WriteString("\n\nContent:\n")
	b.WriteString(content)
	b.WriteString("\n\nReturn all metadata in JSON format.\n")
	return b.String()
}

// TruncateInput cuts text to at most max characters without splitting a
// multi-byte rune. A max of zero or less disables truncation.
func TruncateInput(text string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text, false
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i], true
		}
		n++
	}
	return text, false
}
