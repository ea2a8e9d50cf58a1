// Package htmltext converts HTML fragments to plain text.
//
// Product descriptions arrive from the catalog API as HTML fragments; batch
// artifacts store them as plain text with block boundaries collapsed to
// newlines.
package htmltext

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Strip parses an HTML fragment and returns its visible text content.
// Text nodes are joined with newlines and surrounding whitespace is trimmed,
// so nested markup flattens to one line per text run.
func Strip(fragment string) (string, error) {
	if strings.TrimSpace(fragment) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse html fragment: %w", err)
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
			return
		case html.ElementNode:
			// script/style bodies are not product text
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Selection.Nodes {
		walk(n)
	}

	return strings.Join(parts, "\n"), nil
}
