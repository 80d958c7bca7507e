package search

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// TOCEntry is one heading of a page.
type TOCEntry struct {
	Level  int    `json:"level"`
	Text   string `json:"text"`
	Anchor string `json:"anchor"`
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// TableOfContents lists the headings of body in document order. Headings
// inside code blocks are not headings and are not listed.
func TableOfContents(body string) []TOCEntry {
	src := []byte(body)
	doc := markdown.Parser().Parse(text.NewReader(src))

	entries := []TOCEntry{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		inlineText(h, src, &b)
		label := strings.TrimSpace(b.String())
		entries = append(entries, TOCEntry{Level: h.Level, Text: label, Anchor: Anchor(label)})
		return ast.WalkSkipChildren, nil
	})
	return entries
}

func inlineText(n ast.Node, src []byte, b *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			inlineText(c, src, b)
		}
	}
}

// Anchor derives a heading anchor: lower case, punctuation dropped, runs of
// whitespace turned into a single '-'.
func Anchor(heading string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(heading)) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			if space && b.Len() > 0 {
				b.WriteByte('-')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
