package extract

import (
	"regexp"
	"strings"

	"github.com/ppiankov/proposalgate/internal/markup"
	"golang.org/x/net/html"
)

var (
	htmlTagPattern  = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>`)
	paragraphBreak  = regexp.MustCompile(`\n{2,}`)
	blankLinePadded = regexp.MustCompile(`\n[ \t]+\n`)
)

// blockElements end a paragraph when rendered to plain text
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "tr": true, "section": true, "article": true,
}

// LooksLikeHTML reports whether content came from the rich-text editor rather than plain generation
func LooksLikeHTML(content string) bool {
	return htmlTagPattern.MatchString(content)
}

// VisibleText renders HTML section bodies to plain text, keeping block boundaries as blank lines.
// Plain text passes through unchanged.
func VisibleText(content string) string {
	if !LooksLikeHTML(content) {
		return content
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		// html.Parse only fails on reader errors; fall back to the raw content
		return content
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			// Skip script, style, noscript tags
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			case "br":
				buf.WriteString("\n")
				return
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteString("\n\n")
		}
	}

	walk(doc)
	return strings.TrimSpace(paragraphBreak.ReplaceAllString(buf.String(), "\n\n"))
}

// PlainText is section content with HTML rendered and markup stripped
func PlainText(content string) string {
	return markup.Strip(VisibleText(content))
}

// SplitParagraphs splits content on blank-line boundaries (two or more consecutive
// newlines) and discards empty paragraphs. Markup is preserved so callers can
// detect placeholder tokens per paragraph.
func SplitParagraphs(content string) []string {
	text := strings.ReplaceAll(VisibleText(content), "\r\n", "\n")
	text = blankLinePadded.ReplaceAllString(text, "\n\n")

	var paragraphs []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// WordCount counts whitespace-separated words of the plain text
func WordCount(content string) int {
	return len(strings.Fields(PlainText(content)))
}
