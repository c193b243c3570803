package portal

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// skippedElements never contribute visible text.
var skippedElements = []string{"script", "style", "noscript", "iframe", "svg", "object", "embed", "template"}

// ExtractText renders the visible text of a result page. Table rows
// become one line each with cells joined by " | ", block elements start
// new lines and runs of whitespace collapse to a single space.
func ExtractText(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(strings.Join(skippedElements, ", ")).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var w textWriter
	for _, n := range root.Nodes {
		w.walk(n)
	}
	w.flush()
	return strings.Join(w.lines, "\n"), nil
}

type textWriter struct {
	lines []string
	words []string
}

func (w *textWriter) flush() {
	if len(w.words) > 0 {
		w.lines = append(w.lines, strings.Join(w.words, " "))
		w.words = w.words[:0]
	}
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.words = append(w.words, strings.Fields(n.Data)...)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		switch {
		case tag == "tr":
			w.flush()
			if row := rowText(n); row != "" {
				w.lines = append(w.lines, row)
			}
			return
		case tag == "br":
			w.flush()
			return
		case isBlockElement(tag):
			w.flush()
			w.walkChildren(n)
			w.flush()
			return
		}
	}
	w.walkChildren(n)
}

func (w *textWriter) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// rowText joins the non-empty cells of a table row.
func rowText(tr *html.Node) string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
			continue
		}
		text := strings.Join(strings.Fields(goquery.NewDocumentFromNode(c).Text()), " ")
		if text != "" {
			cells = append(cells, text)
		}
	}
	return strings.Join(cells, " | ")
}

// isBlockElement returns true for elements that start a new line.
func isBlockElement(tag string) bool {
	switch tag {
	case "div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "thead", "tbody",
		"tfoot", "caption", "form", "fieldset", "blockquote", "pre", "hr", "center":
		return true
	}
	return false
}
