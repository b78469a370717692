package portal

import (
	"regexp"
	"strings"

	"RoboSupport/backend/go/internal/models"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	notFoundPattern   = regexp.MustCompile(`(?i)\b(not found|no results?|does not exist|invalid task number)\b`)
	unresolvedPattern = regexp.MustCompile(`(?i)\b(unresolved|not (yet )?resolved)\b`)
	resolvedPattern   = regexp.MustCompile(`(?i)\bresolved\b`)
	openPattern       = regexp.MustCompile(`(?i)\b(open|pending|in progress)\b`)
	dateStampPattern  = regexp.MustCompile(`(?:January|February|March|April|May|June|July|August|September|October|November|December) \d{1,2}, \d{4} at \d{1,2}:\d{2} ?(?:AM|PM)`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

const responseHeading = "support team response"

// ParseStatusPage classifies a rendered status page and, for resolved cases,
// extracts the raw support team reply. The reply still contains whatever
// surrounding noise the page had; callers clean it for display.
func ParseStatusPage(page string) (models.CaseStatus, string) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return models.CaseUnknown, ""
	}

	body := collapse(textContent(doc))
	switch {
	case body == "":
		return models.CaseUnknown, ""
	case notFoundPattern.MatchString(body):
		return models.CaseUnknown, ""
	case unresolvedPattern.MatchString(body):
		return models.CaseOpen, ""
	case resolvedPattern.MatchString(body):
		return models.CaseResolved, extractResponse(doc, body)
	case openPattern.MatchString(body):
		return models.CaseOpen, ""
	}
	return models.CaseUnknown, ""
}

func extractResponse(doc *html.Node, body string) string {
	// Reply card: <div class="flex items-start ..."> holding the date in a
	// purple paragraph and the message in a gray-800 paragraph.
	for _, card := range findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClasses(n, "flex", "items-start")
	}) {
		for _, p := range findAll(card, func(n *html.Node) bool {
			return n.DataAtom == atom.P && hasClasses(n, "text-gray-800")
		}) {
			if text := collapse(textContent(p)); text != "" {
				return text
			}
		}
	}

	// A "Support Team Response" heading followed by a gray paragraph.
	elements := findAll(doc, func(n *html.Node) bool { return n.Type == html.ElementNode })
	for i, n := range elements {
		if !isHeading(n) || !strings.Contains(strings.ToLower(collapse(textContent(n))), responseHeading) {
			continue
		}
		for _, next := range elements[i+1:] {
			if next.DataAtom != atom.P || !hasClassPrefix(next, "text-gray") {
				continue
			}
			if text := collapse(textContent(next)); text != "" {
				return text
			}
		}
		break
	}

	// Last resort: whatever follows the reply date stamp.
	if loc := dateStampPattern.FindStringIndex(body); loc != nil {
		rest := body[loc[1]:]
		if i := strings.Index(rest, "©"); i >= 0 {
			rest = rest[:i]
		}
		return strings.TrimSpace(rest)
	}
	return ""
}

func isHeading(n *html.Node) bool {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Strong:
		return true
	}
	return false
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return out
}

// textContent concatenates the text below n, skipping scripts and styles.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Noscript):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

func classes(n *html.Node) []string {
	for _, a := range n.Attr {
		if a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

func hasClasses(n *html.Node, want ...string) bool {
	have := classes(n)
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasClassPrefix(n *html.Node, prefix string) bool {
	for _, c := range classes(n) {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
