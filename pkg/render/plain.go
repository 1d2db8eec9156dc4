package render

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Plain strips markdown down to readable text. Used for piped output and
// the line-oriented modes.
type Plain struct {
	md goldmark.Markdown
}

var _ Renderer = Plain{}

func NewPlain() Plain {
	return Plain{md: goldmark.New()}
}

func (p Plain) Render(markdown string) (string, error) {
	md := p.md
	if md == nil {
		md = goldmark.New()
	}
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if b := block(n, src); strings.TrimSpace(b) != "" {
			blocks = append(blocks, b)
		}
	}
	return strings.TrimSpace(strings.Join(blocks, "\n\n")), nil
}

func block(n ast.Node, src []byte) string {
	switch v := n.(type) {
	case *ast.List:
		return list(v, src)
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		return strings.TrimRight(rawLines(n, src), "\n")
	case *ast.Blockquote:
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			parts = append(parts, block(c, src))
		}
		return prefixLines(strings.Join(parts, "\n"), "> ", "> ")
	case *ast.ThematicBreak:
		return "---"
	default:
		return inline(n, src)
	}
}

func list(l *ast.List, src []byte) string {
	var items []string
	i := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "- "
		if l.IsOrdered() {
			marker = strconv.Itoa(i) + ". "
			i++
		}
		var parts []string
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			parts = append(parts, block(c, src))
		}
		items = append(items, prefixLines(strings.Join(parts, "\n"), marker, strings.Repeat(" ", len(marker))))
	}
	return strings.Join(items, "\n")
}

func inline(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.URL(src))
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			label := inlineChildren(v, src)
			b.WriteString(label)
			if dest := string(v.Destination); dest != "" && dest != label {
				b.WriteString(" (" + dest + ")")
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func inlineChildren(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		b.WriteString(inline(c, src))
	}
	return b.String()
}

func rawLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

func prefixLines(s, first, rest string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = first + lines[i]
		} else if lines[i] != "" {
			lines[i] = rest + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
