package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Quarterly Report</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Normal"/></w:pPr><w:r><w:t xml:space="preserve">Revenue grew </w:t></w:r><w:r><w:t>12%</w:t></w:r></w:p>
<w:p><w:r><w:t>Name</w:t><w:tab/><w:t>Value</w:t><w:br/><w:t>Next line</w:t></w:r></w:p>
</w:body>
</w:document>`

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/document.xml":            body,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDOCXExtractor_Extract(t *testing.T) {
	ex := &DOCXExtractor{}

	text, metadata, err := ex.Extract(context.Background(), buildDOCX(t, docxBody))
	require.NoError(t, err)

	assert.Equal(t, "Quarterly Report\nRevenue grew 12%\nName\tValue\nNext line", text)
	assert.Equal(t, "docx", metadata["type"])
	assert.Equal(t, "3", metadata["paragraphs"])
	assert.Equal(t, "success", metadata["status"])
}

func TestDOCXExtractor_InvalidContent(t *testing.T) {
	ex := &DOCXExtractor{}

	tests := map[string][]byte{
		"too small":    {0x50},
		"no signature": []byte("plain text pretending to be docx"),
		"broken zip":   []byte("PK\x03\x04 not really a zip"),
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ex.Extract(context.Background(), content)
			var perr *ProcessingError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestDOCXExtractor_EmptyDocument(t *testing.T) {
	body := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p/></w:body></w:document>`

	text, metadata, err := (&DOCXExtractor{}).Extract(context.Background(), buildDOCX(t, body))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, "empty", metadata["status"])
	assert.Equal(t, "1", metadata["paragraphs"])
}

func TestDocxParagraphs(t *testing.T) {
	paragraphs, err := docxParagraphs(docxBody)
	require.NoError(t, err)
	assert.Equal(t, []string{"Quarterly Report", "Revenue grew 12%", "Name\tValue\nNext line"}, paragraphs)
}
