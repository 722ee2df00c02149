package epub

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	dropCapClass   = regexp.MustCompile(`(?i)(dropcap|drop.?cap|initial|first.?letter|big.?letter)`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
	splitCapital   = regexp.MustCompile(`(?m)^([A-Z])\n([a-z])`)
	horizontalWS   = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// block is one paragraph of plain text tagged with the most recent anchor
// seen before it and whether it came from a top-level heading.
type block struct {
	text    string
	anchor  string
	heading int
}

type linearizer struct {
	anchors map[string]bool
	kepub   bool
	blocks  []block
	buf     strings.Builder
	anchor  string
	heading int
}

// parseUnit converts a content unit's markup into paragraph blocks.
func parseUnit(u ContentUnit, anchors map[string]bool, kepub bool) ([]block, error) {
	root, err := html.Parse(bytes.NewReader(u.Markup))
	if err != nil {
		return nil, err
	}
	body := root
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})

	l := &linearizer{anchors: anchors, kepub: kepub}
	l.visit(body)
	l.flush()
	return l.blocks, nil
}

func (l *linearizer) visit(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		l.buf.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			l.visit(c)
		}
		return
	}

	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Title:
		return
	case atom.Br:
		l.buf.WriteByte('\n')
		return
	}

	if l.decorative(n) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			l.visit(c)
		}
		return
	}

	if id := anchorID(n); id != "" && l.anchors[id] {
		l.flush()
		l.anchor = id
	}

	level := headingLevel(n)
	isBlock := level > 0 || blockElement[n.DataAtom]
	if isBlock {
		l.flush()
	}
	prevHeading := l.heading
	if level > 0 && level <= 2 {
		l.heading = level
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		l.visit(c)
	}
	if isBlock {
		l.flush()
	}
	l.heading = prevHeading
}

func (l *linearizer) flush() {
	text := cleanParagraph(l.buf.String())
	l.buf.Reset()
	if text == "" {
		return
	}
	l.blocks = append(l.blocks, block{text: text, anchor: l.anchor, heading: l.heading})
}

// decorative reports whether n is span-level wrapper markup that should be
// unwrapped rather than treated as structure.
func (l *linearizer) decorative(n *html.Node) bool {
	class := attr(n, "class")
	if class == "" {
		return false
	}
	if l.kepub && n.DataAtom == atom.Span && strings.Contains(class, "koboSpan") {
		return true
	}
	return dropCapClass.MatchString(class)
}

var blockElement = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Blockquote: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Aside: true, atom.Pre: true, atom.Tr: true, atom.Table: true,
	atom.Ul: true, atom.Ol: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Figure: true, atom.Figcaption: true, atom.Hr: true, atom.Address: true,
	atom.Nav: true, atom.Main: true, atom.Body: true,
}

func headingLevel(n *html.Node) int {
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func anchorID(n *html.Node) string {
	if id := attr(n, "id"); id != "" {
		return id
	}
	if n.DataAtom == atom.A {
		return attr(n, "name")
	}
	return ""
}

// cleanParagraph collapses horizontal whitespace and keeps explicit line
// breaks.
func cleanParagraph(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(horizontalWS.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// joinBlocks renders paragraphs as plain text separated by blank lines,
// reattaching drop capitals that were split into their own paragraph.
func joinBlocks(blocks []block) string {
	parts := make([]string, 0, len(blocks))
	for i := 0; i < len(blocks); i++ {
		text := blocks[i].text
		if isLoneCapital(text) && i+1 < len(blocks) && startsLower(blocks[i+1].text) {
			text += blocks[i+1].text
			i++
		}
		parts = append(parts, text)
	}
	return normalizeText(strings.Join(parts, "\n\n"))
}

// normalizeText applies the uniform plain-text cleanup.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	s = splitCapital.ReplaceAllString(s, "$1$2")
	return strings.TrimSpace(s)
}

func isLoneCapital(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && unicode.IsUpper(r)
}

func startsLower(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLower(r)
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(s, " "))
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}
