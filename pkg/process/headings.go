package process

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Heading is one markdown heading with its level (1-6)
type Heading struct {
	Level int
	Text  string
}

// ExtractOutline parses markdown and returns its headings in document order.
// Inline markup inside a heading (emphasis, code, links) contributes its text.
func ExtractOutline(markdown []byte) []Heading {
	doc := goldmark.DefaultParser().Parse(text.NewReader(markdown))

	var out []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		collectText(h, markdown, &b)
		if t := strings.TrimSpace(b.String()); t != "" {
			out = append(out, Heading{Level: h.Level, Text: t})
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

// ExtractHeadings returns only the heading texts of ExtractOutline
func ExtractHeadings(markdown []byte) []string {
	outline := ExtractOutline(markdown)
	if len(outline) == 0 {
		return nil
	}
	texts := make([]string, len(outline))
	for i, h := range outline {
		texts[i] = h.Text
	}
	return texts
}

func collectText(n ast.Node, source []byte, b *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			if v.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		default:
			collectText(c, source, b)
		}
	}
}
