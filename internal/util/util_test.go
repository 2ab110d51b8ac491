package util

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestGetFrontMatter(t *testing.T) {
	testCases := []struct {
		name                string
		markdown            []byte
		expectError         bool
		expectedTitle       string
		expectedDescription string
		expectedDate        time.Time
	}{
		{
			name: "Valid Front Matter",
			markdown: []byte(`%%%
title = "Hello World"
description = "A greeting"
date = 2025-01-01 00:00:00Z
%%%
# Content`),
			expectedTitle:       "Hello World",
			expectedDescription: "A greeting",
			expectedDate:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "No Front Matter",
			markdown: []byte(`# Just Content
No front matter here.`),
			expectError: true,
		},
		{
			name:        "Empty File",
			markdown:    []byte(""),
			expectError: true,
		},
		{
			name: "Content Before Front Matter",
			markdown: []byte(`
# This should be ignored
%%%
title = "Hello World"
%%%
# Content`),
			expectError: true,
		},
		{
			name: "Extra Whitespace",
			markdown: []byte(`


%%%

title = "Hello World"
date = 2025-01-01 00:00:00Z

%%%
# Content`),
			expectedTitle: "Hello World",
			expectedDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "Malformed Front Matter",
			markdown: []byte(`%%%
title = "Incomplete
# Content`),
			expectError: true,
		},
		{
			name: "Invalid TOML",
			markdown: []byte(`%%%
title = = "x"
%%%
`),
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := GetFrontMatter(tc.markdown)
			if tc.expectError {
				if err == nil {
					t.Fatalf("Expected error, got front matter %+v", info)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if info.Title != tc.expectedTitle {
				t.Errorf("Expected title %q, got %q", tc.expectedTitle, info.Title)
			}
			if info.Description != tc.expectedDescription {
				t.Errorf("Expected description %q, got %q", tc.expectedDescription, info.Description)
			}
			if !info.Date.Equal(tc.expectedDate) {
				t.Errorf("Expected date %v, got %v", tc.expectedDate, info.Date)
			}
			if info.Language != "en" {
				t.Errorf("Expected default language 'en', got %q", info.Language)
			}
		})
	}
}

func TestGetFrontMatterNoFrontMatterSentinel(t *testing.T) {
	_, err := GetFrontMatter([]byte("# Title"))
	if !errors.Is(err, ErrNoFrontMatter) {
		t.Errorf("Expected ErrNoFrontMatter, got %v", err)
	}
}

func TestEncodeFrontMatterRoundTrip(t *testing.T) {
	type fm struct {
		Title       string   `toml:"title"`
		Description string   `toml:"description"`
		Published   bool     `toml:"published"`
		Slides      []string `toml:"slides"`
	}

	in := fm{
		Title:       "Post",
		Description: "About things",
		Published:   true,
		Slides:      []string{"one", "two"},
	}

	out, err := EncodeFrontMatter(in, []byte("# Body\n"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	info, err := GetFrontMatter(out)
	if err != nil {
		t.Fatalf("Unexpected error decoding: %v", err)
	}
	if info.Title != in.Title || info.Description != in.Description || !info.Published {
		t.Errorf("Decoded front matter mismatch: %+v", info)
	}
	if !reflect.DeepEqual(info.Slides, in.Slides) {
		t.Errorf("Expected slides %v, got %v", in.Slides, info.Slides)
	}

	body := StripFrontMatter(out)
	if string(body) != "# Body\n" {
		t.Errorf("Expected body %q, got %q", "# Body\n", string(body))
	}
}

func TestStripFrontMatterWithoutBlock(t *testing.T) {
	md := []byte("plain text")
	if got := StripFrontMatter(md); string(got) != "plain text" {
		t.Errorf("Expected input unchanged, got %q", got)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHashString("hello")
	if a != b {
		t.Errorf("Expected equal hashes, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(a))
	}
	if a == ContentHash([]byte("hello!")) {
		t.Error("Different content should produce different hashes")
	}
	if strings.ToLower(a) != a {
		t.Error("Expected lowercase hex encoding")
	}
}
