// CLAUDE:SUMMARY Extracts profile links from a listing HTML snapshot using a small CSS selector subset.
package collector

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/reachout/exclusion"
)

// Extract parses doc and returns the attr value of every node matching
// selector, resolved against base when relative. Duplicates are dropped,
// first occurrence wins. Supported selector subset:
//   - tag, .class, #id, tag.class, tag#id
//   - tag[attr], tag[attr=val]
//   - descendant combinator (space separated parts)
func Extract(doc, selector, attr string, base *url.URL) ([]exclusion.ProfileRef, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("collector: parse listing: %w", err)
	}

	seen := make(exclusion.Set)
	var refs []exclusion.ProfileRef
	for _, n := range querySelectorAll(root, selector) {
		raw := strings.TrimSpace(getAttr(n, attr))
		if raw == "" {
			continue
		}
		ref := exclusion.Normalize(resolve(base, raw))
		if seen.Add(ref) {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func resolve(base *url.URL, raw string) string {
	if base == nil {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(u).String()
}

// querySelectorAll returns all nodes matching a simple CSS selector.
func querySelectorAll(doc *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}

	matches := matchSimple(doc, parts[0])

	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		seen := make(map[*html.Node]bool)
		for _, parent := range matches {
			for _, c := range matchDescendants(parent, parts[i]) {
				if !seen[c] {
					seen[c] = true
					next = append(next, c)
				}
			}
		}
		matches = next
	}

	return matches
}

// matchSimple finds all nodes under root (root included) matching sel.
func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if matchesSelector(n, m) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

// matchDescendants is matchSimple excluding root itself.
func matchDescendants(root *html.Node, sel string) []*html.Node {
	var results []*html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		results = append(results, matchSimple(c, sel)...)
	}
	return results
}

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

// parseSimpleSelector parses "tag.class", "#id", "tag[attr=val]", etc.
func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eqIdx := strings.IndexByte(attrPart, '='); eqIdx >= 0 {
			s.attrKey = attrPart[:eqIdx]
			s.attrVal = strings.Trim(attrPart[eqIdx+1:], `"'`)
		} else {
			s.attrKey = attrPart
		}
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}

	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}

	s.tag = sel
	return s
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	if s.class != "" && !hasClass(n, s.class) {
		return false
	}
	if s.attrKey != "" {
		if s.attrVal != "" {
			return getAttr(n, s.attrKey) == s.attrVal
		}
		return hasAttr(n, s.attrKey)
	}
	return true
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
