package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

func getStyle(theme string) *chroma.Style {
	if style := styles.Get(theme); style != nil {
		return style
	}
	return styles.Fallback
}

// HighlightCode renders code as HTML with inline styles from theme. On
// failure the code is returned escaped.
func HighlightCode(code, language, theme string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "<pre>" + html.EscapeString(code) + "</pre>"
	}

	var buf strings.Builder
	formatter := chtml.New(chtml.WithClasses(false), chtml.TabWidth(4))
	if err := formatter.Format(&buf, getStyle(theme), iterator); err != nil {
		return "<pre>" + html.EscapeString(code) + "</pre>"
	}
	return buf.String()
}

// HighlightMarkdown highlights markdown source, keeping line breaks.
func HighlightMarkdown(markdown string, theme string) (string, error) {
	lexer := lexers.Get("markdown")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	formatter := chtml.New(
		chtml.WithClasses(false),
		chtml.WithLineNumbers(false),
		chtml.PreventSurroundingPre(true),
	)

	iterator, err := lexer.Tokenise(nil, markdown)
	if err != nil {
		return markdown, err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, getStyle(theme), iterator); err != nil {
		return markdown, err
	}

	result := `<div class="markdown-source">` + buf.String() + `</div>`
	return strings.ReplaceAll(result, "\n", "<br>\n"), nil
}
