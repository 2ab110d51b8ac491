// Package render turns post markdown into HTML previews.
package render

import (
	"bytes"
	"fmt"
	"io"

	"github.com/debemdeboas/archive-editor/internal/cache"
	"github.com/debemdeboas/archive-editor/internal/util"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mmarkdown/mmark/v2/lang"
	"github.com/mmarkdown/mmark/v2/mast"
	"github.com/mmarkdown/mmark/v2/mparser"
	"github.com/mmarkdown/mmark/v2/render/mhtml"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gutil "github.com/yuin/goldmark/util"
)

var renderLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	renderLogger = l
}

const (
	RendererMmark    = "mmark"
	RendererGoldmark = "goldmark"
	RendererClassic  = "classic"
)

// Renderer renders markdown with one of the supported engines and caches
// the result by content hash.
type Renderer struct {
	name        string
	syntaxTheme string
	goldmark    goldmark.Markdown
}

func New(name, syntaxTheme string) (*Renderer, error) {
	r := &Renderer{name: name, syntaxTheme: syntaxTheme}
	switch name {
	case RendererMmark, RendererClassic:
	case RendererGoldmark:
		r.goldmark = goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
			goldmark.WithParserOptions(gparser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(
				renderer.WithNodeRenderers(gutil.Prioritized(&codeBlockRenderer{theme: syntaxTheme}, 200)),
			),
		)
	default:
		return nil, fmt.Errorf("unknown renderer %q", name)
	}
	return r, nil
}

func (r *Renderer) Name() string { return r.name }

// Render returns the HTML for md. The second value is the mmark title
// block, if the mmark engine found one.
func (r *Renderer) Render(md []byte) ([]byte, any) {
	switch r.name {
	case RendererMmark:
		return RenderMarkdownMmark(md, r.syntaxTheme)
	case RendererGoldmark:
		var buf bytes.Buffer
		if err := r.goldmark.Convert(md, &buf); err != nil {
			renderLogger.Error().Err(err).Msg("Error rendering markdown")
			return nil, nil
		}
		return buf.Bytes(), nil
	default:
		return RenderMarkdownClassic(md, r.syntaxTheme), nil
	}
}

// RenderCached is Render behind the rendered-markdown cache.
func (r *Renderer) RenderCached(md []byte) ([]byte, any) {
	key := cache.RenderKey{
		Renderer:    r.name,
		ContentHash: util.ContentHash(md),
		SyntaxTheme: r.syntaxTheme,
	}
	if cached, found := cache.GetRenderedMarkdown(key); found {
		renderLogger.Debug().Str("content_hash", key.ContentHash).Msg("Cache hit for rendered markdown")
		return cached.HTML, cached.Extra
	}

	html, extra := r.Render(md)
	cache.SetRenderedMarkdown(key, html, extra)
	return html, extra
}

func codeHook(highlightTheme string) func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
	return func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
		if code, ok := node.(*ast.CodeBlock); ok && entering {
			fmt.Fprintf(w, "<div class=\"highlight\">%s</div>", HighlightCode(string(code.Literal), string(code.Info), highlightTheme))
			return ast.GoToNext, true
		}
		return ast.GoToNext, false
	}
}

func RenderMarkdownClassic(md []byte, highlightTheme string) []byte {
	hook := codeHook(highlightTheme)
	opts := md_html.RendererOptions{
		Flags: md_html.CommonFlags | md_html.HrefTargetBlank | md_html.FootnoteReturnLinks,
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if status, done := hook(w, node, entering); done {
				return status, done
			}
			if callout, ok := node.(*ast.Callout); ok && entering {
				fmt.Fprintf(w, "<span class=\"callout\">%s</span>", callout.ID)
				return ast.GoToNext, true
			}
			return ast.GoToNext, false
		},
	}

	doc := parser.NewWithExtensions(
		parser.Tables | parser.FencedCode | parser.Autolink | parser.Strikethrough | parser.SpaceHeadings |
			parser.HeadingIDs | parser.BackslashLineBreak | parser.SuperSubscript | parser.DefinitionLists |
			parser.AutoHeadingIDs | parser.Footnotes | parser.OrderedListStart | parser.NonBlockingSpace,
	).Parse(md)
	return markdown.Render(doc, md_html.NewRenderer(opts))
}

// RenderMarkdownMmark renders with the mmark extensions. A %%% title block
// is parsed and returned instead of being rendered.
func RenderMarkdownMmark(md []byte, highlightTheme string) ([]byte, *mast.TitleData) {
	md = markdown.NormalizeNewlines(md)

	p := parser.NewWithExtensions(mparser.Extensions | parser.NoIntraEmphasis)
	init := mparser.NewInitial("")
	var info *mast.TitleData

	p.Opts = parser.Options{
		ParserHook: func(data []byte) (ast.Node, []byte, int) {
			node, data, consumed := mparser.Hook(data)
			if t, ok := node.(*mast.Title); ok {
				info = t.TitleData
			}
			return node, data, consumed
		},
		ReadIncludeFn: init.ReadInclude,
		Flags:         parser.FlagsNone,
	}

	doc := markdown.Parse(md, p)
	mparser.AddIndex(doc)

	// The title block may be missing, and with it the language.
	if info == nil {
		info = &mast.TitleData{Title: "Untitled", Language: "en"}
	}
	mhtmlOpts := mhtml.RendererOptions{Language: lang.New(info.Language)}

	hook := codeHook(highlightTheme)
	opts := md_html.RendererOptions{
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if status, done := hook(w, node, entering); done {
				return status, done
			}
			return mhtmlOpts.RenderHook(w, node, entering)
		},
		Flags: md_html.CommonFlags | md_html.FootnoteNoHRTag | md_html.FootnoteReturnLinks,
	}

	return markdown.Render(doc, md_html.NewRenderer(opts)), info
}

// codeBlockRenderer highlights fenced code for goldmark.
type codeBlockRenderer struct {
	theme string
}

func (c *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(gast.KindFencedCodeBlock, c.renderFencedCodeBlock)
}

func (c *codeBlockRenderer) renderFencedCodeBlock(w gutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkContinue, nil
	}
	n := node.(*gast.FencedCodeBlock)

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		code.Write(line.Value(source))
	}

	fmt.Fprintf(w, "<div class=\"highlight\">%s</div>", HighlightCode(code.String(), string(n.Language(source)), c.theme))
	return gast.WalkSkipChildren, nil
}
