package model

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Draft is the editable state of a post as held by an editor session.
// It is passed by value; Slides must never be shared between copies.
type Draft struct {
	ID          PostID   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Slides      []string `json:"slides"`
	Published   bool     `json:"published"`
	Owner       UserID   `json:"owner,omitempty"`
}

// Clone returns a deep copy of d.
func (d Draft) Clone() Draft {
	d.Slides = CloneSlides(d.Slides)
	return d
}

// SameContent reports whether the persisted fields tracked by autosave
// (title, description, content and slides) are equal.
func (d Draft) SameContent(other Draft) bool {
	return d.Title == other.Title &&
		d.Description == other.Description &&
		d.Content == other.Content &&
		slices.Equal(d.Slides, other.Slides)
}

// CloneSlides copies s. A nil input yields an empty, non-nil slice.
func CloneSlides(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// EncodeSlides serializes slides as a JSON array of strings.
func EncodeSlides(slides []string) (string, error) {
	if slides == nil {
		slides = []string{}
	}
	b, err := json.Marshal(slides)
	if err != nil {
		return "", fmt.Errorf("error encoding slides: %w", err)
	}
	return string(b), nil
}

// DecodeSlides parses the output of EncodeSlides. Empty input decodes to an
// empty sequence.
func DecodeSlides(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var slides []string
	if err := json.Unmarshal([]byte(s), &slides); err != nil {
		return nil, fmt.Errorf("error decoding slides: %w", err)
	}
	if slides == nil {
		slides = []string{}
	}
	return slides, nil
}
