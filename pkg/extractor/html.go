package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ImprovedHTMLExtractor pulls readable text out of an HTML page, skipping
// scripts, styles and navigation chrome.
type ImprovedHTMLExtractor struct{}

func NewImprovedHTMLExtractor() *ImprovedHTMLExtractor {
	return &ImprovedHTMLExtractor{}
}

func (h *ImprovedHTMLExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type": "html",
		"size": fmt.Sprintf("%d", len(content)),
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", metadata, processingErrorf("failed to parse HTML: %v", err)
	}

	w := &htmlWalker{meta: map[string]string{}}
	w.walk(doc)

	text := collapseBlankLines(w.text.String())
	if w.title != "" {
		metadata["html_title"] = w.title
	}
	for k, v := range w.meta {
		metadata["html_meta_"+k] = v
	}
	metadata["characters"] = fmt.Sprintf("%d", len(text))
	metadata["status"] = "success"

	return text, metadata, nil
}

type htmlWalker struct {
	text  strings.Builder
	title string
	meta  map[string]string
}

func (w *htmlWalker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "nav", "aside", "template":
			return
		case "title":
			if w.title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				w.title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		case "meta":
			w.readMeta(n)
			return
		case "br":
			w.text.WriteByte('\n')
		}
	}

	if n.Type == html.TextNode {
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			if w.text.Len() > 0 && !strings.HasSuffix(w.text.String(), "\n") {
				w.text.WriteByte(' ')
			}
			w.text.WriteString(text)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode && isBlockElement(n.Data) {
		w.text.WriteString("\n\n")
	}
}

func (w *htmlWalker) readMeta(n *html.Node) {
	var name, content string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "name":
			name = strings.ToLower(a.Val)
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	switch name {
	case "author", "description", "keywords":
		if content != "" {
			w.meta[name] = content
		}
	}
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "blockquote",
		"article", "section", "main", "pre", "td", "th", "dt", "dd", "tr", "header", "footer":
		return true
	}
	return false
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n\n")
}
