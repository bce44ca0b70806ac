package extractor

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// DOCXExtractor handles DOCX file extraction
type DOCXExtractor struct{}

// Extract extracts paragraph text from DOCX content, one line per paragraph.
func (d *DOCXExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type": "docx",
		"size": fmt.Sprintf("%d", len(content)),
	}

	if len(content) < 4 {
		return "", metadata, processingErrorf("file too small to be a valid DOCX document")
	}

	// DOCX files are ZIP archives
	if content[0] != 0x50 || content[1] != 0x4B {
		return "", metadata, processingErrorf("not a valid DOCX file - missing ZIP signature: %x", content[:4])
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", metadata, processingErrorf("failed to parse DOCX: %v", err)
	}
	defer doc.Close()

	paragraphs, err := docxParagraphs(doc.Editable().GetContent())
	if err != nil {
		return "", metadata, processingErrorf("failed to read DOCX body: %v", err)
	}

	text := strings.TrimSpace(strings.Join(paragraphs, "\n"))

	metadata["paragraphs"] = fmt.Sprintf("%d", len(paragraphs))
	metadata["text_length"] = fmt.Sprintf("%d", len(text))
	metadata["word_count"] = fmt.Sprintf("%d", len(strings.Fields(text)))
	metadata["status"] = "success"
	if text == "" {
		metadata["status"] = "empty"
	}

	return text, metadata, nil
}

// docxParagraphs walks word/document.xml and returns the text of each w:p.
func docxParagraphs(body string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
		depth      int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				depth++
				if depth == 1 {
					current.Reset()
				}
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				depth--
				if depth == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}
