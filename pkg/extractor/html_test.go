package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImprovedHTMLExtractor(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
  <title> Annual Filing </title>
  <meta name="author" content="Jane Doe">
  <meta name="description" content="Yearly results">
  <style>body { color: red; }</style>
  <script>var tracking = true;</script>
</head>
<body>
  <nav><a href="/">Home</a></nav>
  <h1>Results</h1>
  <p>Revenue   increased
     this year.</p>
  <p>Costs fell.<br>Margins rose.</p>
</body>
</html>`

	text, metadata, err := NewImprovedHTMLExtractor().Extract(context.Background(), []byte(page))
	require.NoError(t, err)

	assert.Contains(t, text, "Results")
	assert.Contains(t, text, "Revenue increased this year.")
	assert.Contains(t, text, "Margins rose.")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Home")

	assert.Equal(t, "Annual Filing", metadata["html_title"])
	assert.Equal(t, "Jane Doe", metadata["html_meta_author"])
	assert.Equal(t, "Yearly results", metadata["html_meta_description"])
}
