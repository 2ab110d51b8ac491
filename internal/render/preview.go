package render

import (
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/mmarkdown/mmark/v2/mast"
)

// Preview is the rendered form of a draft.
type Preview struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	HTML        string   `json:"html"`
	Slides      []string `json:"slides"`
	Source      string   `json:"source,omitempty"`
}

// Preview renders the content and every slide of d. With source set, the
// highlighted markdown source is included as well.
func (r *Renderer) Preview(d model.Draft, source bool) Preview {
	html, extra := r.RenderCached([]byte(d.Content))

	p := Preview{
		Title:       d.Title,
		Description: d.Description,
		HTML:        string(html),
		Slides:      make([]string, len(d.Slides)),
	}
	if info, ok := extra.(*mast.TitleData); ok && p.Title == "" && info.Title != "Untitled" {
		p.Title = info.Title
	}

	for i, slide := range d.Slides {
		rendered, _ := r.RenderCached([]byte(slide))
		p.Slides[i] = string(rendered)
	}

	if source {
		highlighted, err := HighlightMarkdown(d.Content, r.syntaxTheme)
		if err != nil {
			renderLogger.Warn().Err(err).Msg("Error highlighting markdown source")
		}
		p.Source = highlighted
	}
	return p
}
