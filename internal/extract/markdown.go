package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// FlattenMarkdown renders a markdown document down to plain paragraphs so
// the chunker only ever sees prose. Headings survive as their own
// paragraphs, fenced code blocks keep their content verbatim, and all
// inline markup is dropped.
func FlattenMarkdown(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var paragraphs []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			var sb strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				sb.Write(line.Value(reader.Source()))
			}
			if code := strings.TrimSpace(sb.String()); code != "" {
				paragraphs = append(paragraphs, code)
			}
		default:
			if txt := blockText(node, reader.Source()); txt != "" {
				paragraphs = append(paragraphs, txt)
			}
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// Normalize squeezes whitespace runs inside paragraphs while keeping
// paragraph breaks, which keeps chunk boundaries stable across
// re-extraction of the same source.
func Normalize(textContent string) string {
	parts := strings.Split(textContent, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			if node.(*ast.Text).SoftLineBreak() || node.(*ast.Text).HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
