// Package model defines core data structures and types for the editor service.
package model

import (
	"html/template"
	"time"

	"github.com/debemdeboas/archive-editor/internal/util"
)

type PostID string

type UserID string

type Post struct {
	ID PostID

	Title       string
	Description string
	Content     template.HTML
	Path        string

	// Used for change detection across reloads.
	// Hash of the stored (compressed) markdown, not of the rendered content.
	MDContentHash string

	Markdown     []byte
	Slides       []string
	Published    bool
	CreatedDate  time.Time
	ModifiedDate time.Time

	// Optional data from the markdown front matter.
	Info *util.ExtendedTitleData

	// Owner of the post (the user who created it).
	Owner UserID
}

func (p *Post) GetTitle() string {
	if p.Title != "" {
		return p.Title
	}
	if p.Info != nil && p.Info.TitleData != nil && p.Info.Title != "" {
		return p.Info.Title
	}
	return "Untitled - " + p.CreatedDate.Format("2006-01-02")
}

// ToDraft copies the editable fields of the post into a Draft.
func (p *Post) ToDraft() Draft {
	return Draft{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Content:     string(p.Markdown),
		Slides:      CloneSlides(p.Slides),
		Published:   p.Published,
		Owner:       p.Owner,
	}
}

// ApplyDraft overwrites the editable fields of the post with d.
func (p *Post) ApplyDraft(d Draft) {
	p.Title = d.Title
	p.Description = d.Description
	p.Markdown = []byte(d.Content)
	p.Slides = CloneSlides(d.Slides)
	p.Published = d.Published
	if d.Owner != "" {
		p.Owner = d.Owner
	}
}
