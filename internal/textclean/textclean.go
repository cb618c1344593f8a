// Package textclean turns model output written in Markdown into the plain
// text a social network post box accepts.
package textclean

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var md = goldmark.New(goldmark.WithParser(newParser()), goldmark.WithExtensions(extension.GFM))

// newParser is goldmark's default parser without thematic breaks. A break
// node keeps no source text, so a post that is or contains "---" would lose
// it; as a paragraph it survives verbatim.
func newParser() parser.Parser {
	var blocks []util.PrioritizedValue
	for _, v := range parser.DefaultBlockParsers() {
		if v.Value == parser.NewThematicBreakParser() {
			continue
		}
		blocks = append(blocks, v)
	}
	return parser.NewParser(
		parser.WithBlockParsers(blocks...),
		parser.WithInlineParsers(parser.DefaultInlineParsers()...),
		parser.WithParagraphTransformers(parser.DefaultParagraphTransformers()...),
	)
}

var (
	blankRuns   = regexp.MustCompile(`\n{3,}`)
	enumeration = regexp.MustCompile(`^\s*(?:\d{1,2}[.)]|[-*•])\s+`)
)

// Plain renders Markdown to plain text. Emphasis and code markers are
// dropped, links keep their label followed by the URL in parentheses and
// list items become bare lines. Anything that parses as HTML is kept as
// written: in a post, "<Go>" is text.
func Plain(s string) string {
	src := []byte(s)
	doc := md.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	var linkStarts []int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(node.Label(src))
			}
		case *ast.Link:
			if entering {
				linkStarts = append(linkStarts, sb.Len())
				return ast.WalkContinue, nil
			}
			start := linkStarts[len(linkStarts)-1]
			linkStarts = linkStarts[:len(linkStarts)-1]
			label := sb.String()[start:]
			if dest := string(node.Destination); dest != "" && dest != label {
				sb.WriteString(" (" + dest + ")")
			}
		case *ast.Image:
			// Alt text only.
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(src))
				}
				sb.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
		case *ast.RawHTML:
			if entering {
				for i := 0; i < node.Segments.Len(); i++ {
					seg := node.Segments.At(i)
					sb.Write(seg.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			if entering {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(src))
				}
				if node.HasClosure() {
					sb.Write(node.ClosureLine.Value(src))
				}
				sb.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading:
			if !entering {
				sb.WriteString("\n\n")
			}
		case *ast.TextBlock:
			if !entering {
				sb.WriteString("\n")
			}
		case *ast.List:
			if !entering {
				sb.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})

	out := strings.ReplaceAll(sb.String(), "\r\n", "\n")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// Item cleans one generated draft: Plain, then a leading enumeration and a
// pair of wrapping quotes are removed.
func Item(s string) string {
	out := Plain(s)
	out = enumeration.ReplaceAllString(out, "")
	return strings.TrimSpace(unquote(out))
}

var quotePairs = [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}, {"«", "»"}}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range quotePairs {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			// Leave text alone when the quotes are internal, e.g. `"a" and "b"`.
			if !strings.Contains(inner, q[0]) && !strings.Contains(inner, q[1]) {
				return inner
			}
		}
	}
	return s
}
