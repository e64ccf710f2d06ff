package browser

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gobwas/glob"
	"golang.org/x/net/html"

	"github.com/entrhq/harvest/pkg/container"
)

// DefaultAffordancePatterns match the labels of controls that reveal more
// content in feeds and comment threads. Patterns are matched against the
// lower-cased label.
var DefaultAffordancePatterns = []string{
	"*load more*",
	"*show more*",
	"*see more*",
	"*view more*",
	"*more comments*",
	"*more replies*",
	"*previous comments*",
}

const maxLabelLength = 80

// affordanceMatcher finds "reveal more" controls in region HTML.
type affordanceMatcher struct {
	patterns []glob.Glob
}

func newAffordanceMatcher(patterns []string) (*affordanceMatcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultAffordancePatterns
	}
	m := &affordanceMatcher{}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid affordance pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

func (m *affordanceMatcher) matches(label string) bool {
	label = strings.ToLower(label)
	for _, g := range m.patterns {
		if g.Match(label) {
			return true
		}
	}
	return false
}

// find parses the inner HTML of the region at regionLocator and returns one
// affordance per distinct matching control. Ids depend only on the region
// and the control, so the same content always yields the same ids.
func (m *affordanceMatcher) find(regionLocator, innerHTML string) ([]container.Affordance, error) {
	doc, err := html.Parse(strings.NewReader(innerHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var found []container.Affordance
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if isSkippedElement(tag) {
				return
			}
			if sel, label, ok := clickable(n, tag); ok && m.matches(label) {
				aff := newAffordance(regionLocator, sel, label)
				if !seen[aff.ID] {
					seen[aff.ID] = true
					found = append(found, aff)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return found, nil
}

// clickable reports whether n is a control a user would click, returning
// the selector prefix and the visible label.
func clickable(n *html.Node, tag string) (string, string, bool) {
	if _, disabled := getAttr(n, "disabled"); disabled {
		return "", "", false
	}

	var sel, label string
	switch tag {
	case "button", "a":
		sel, label = tag, textContent(n)
	case "input":
		typ, _ := getAttr(n, "type")
		if typ != "button" && typ != "submit" {
			return "", "", false
		}
		value, _ := getAttr(n, "value")
		return fmt.Sprintf(`input[value=%q]`, value), value, value != ""
	default:
		if role, _ := getAttr(n, "role"); role == "button" {
			sel, label = `[role="button"]`, textContent(n)
		}
	}

	if label == "" {
		if aria, ok := getAttr(n, "aria-label"); ok {
			label = aria
		}
	}
	label = strings.TrimSpace(label)
	if sel == "" || label == "" || len(label) > maxLabelLength {
		return "", "", false
	}
	return fmt.Sprintf("%s:has-text(%q)", sel, label), label, true
}

func newAffordance(regionLocator, selector, label string) container.Affordance {
	locator := Chain(regionLocator, selector, "nth=0")
	sum := xxhash.Sum64String(regionLocator + "|" + selector)
	return container.Affordance{
		ID:              fmt.Sprintf("%s-%08x", slug(label), uint32(sum)),
		Locator:         locator,
		Label:           label,
		SuggestedAction: container.ActionClick,
	}
}

// slug turns a label into a short lower-case identifier.
func slug(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 32 {
			break
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "control"
	}
	return s
}
