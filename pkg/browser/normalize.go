package browser

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html"
)

// Fingerprint hashes the structure and visible text of an HTML fragment.
// Scripts, styles, comments and attributes do not contribute, so
// cosmetic churn such as rotating class names or inline timers does not
// register as a content change.
func Fingerprint(rawHTML string) string {
	normalized, err := normalizeHTML(rawHTML)
	if err != nil {
		normalized = rawHTML
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

// normalizeHTML reduces a fragment to tag names and trimmed text.
func normalizeHTML(rawHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var builder strings.Builder
	normalizeNode(doc, &builder)
	return builder.String(), nil
}

func normalizeNode(n *html.Node, builder *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return

	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			builder.WriteString(text)
			builder.WriteByte('\n')
		}
		return

	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) {
			return
		}
		builder.WriteByte('<')
		builder.WriteString(tag)
		builder.WriteByte('>')
		defer func() {
			builder.WriteString("</")
			builder.WriteString(tag)
			builder.WriteByte('>')
		}()
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		normalizeNode(c, builder)
	}
}

// isSkippedElement returns true for elements that never carry visible content
func isSkippedElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "template", "iframe", "embed", "object", "svg":
		return true
	}
	return false
}

// textContent returns the whitespace-collapsed text below n.
func textContent(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isSkippedElement(strings.ToLower(n.Data)) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
