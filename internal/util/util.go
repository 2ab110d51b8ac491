// Package util provides utility functions for content hashing and front matter handling.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/gomarkdown/markdown"

	"github.com/mmarkdown/mmark/v2/mast"
)

// FrontMatterDelimiter opens and closes the TOML block at the top of a post.
const FrontMatterDelimiter = "%%%"

var ErrNoFrontMatter = errors.New("invalid front matter format")

type ExtendedTitleData struct {
	*mast.TitleData

	Description string   `toml:"description"`
	Published   bool     `toml:"published"`
	Slides      []string `toml:"slides"`
	Owner       string   `toml:"owner"`

	// Number of bytes of the source taken by the front matter block.
	Consumed int `toml:"-"`
}

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// GetFrontMatter decodes the %%%-delimited TOML block at the start of md.
// Leading whitespace before the opening delimiter is ignored.
func GetFrontMatter(md []byte) (*ExtendedTitleData, error) {
	md = markdown.NormalizeNewlines(md)
	trimmed := bytes.TrimLeft(md, "\n \t\r")
	skipped := len(md) - len(trimmed)

	delimiter := []byte(FrontMatterDelimiter)
	if !bytes.HasPrefix(trimmed, delimiter) {
		return nil, ErrNoFrontMatter
	}

	body := trimmed[len(delimiter):]
	closing := bytes.Index(body, delimiter)
	if closing == -1 {
		return nil, ErrNoFrontMatter
	}

	info := &ExtendedTitleData{
		TitleData: &mast.TitleData{},
	}

	if _, err := toml.Decode(string(body[:closing]), info); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	if info.Language == "" {
		info.Language = "en"
	}

	end := len(delimiter) + closing + len(delimiter)
	if end < len(trimmed) && trimmed[end] == '\n' {
		end++
	}
	info.Consumed = skipped + end

	return info, nil
}

// StripFrontMatter returns md without its front matter block, if it has one.
func StripFrontMatter(md []byte) []byte {
	info, err := GetFrontMatter(md)
	if err != nil {
		return md
	}
	return markdown.NormalizeNewlines(md)[info.Consumed:]
}

// EncodeFrontMatter writes v as a %%%-delimited TOML block followed by body.
func EncodeFrontMatter(v any, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(FrontMatterDelimiter + "\n")
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}
	buf.WriteString(FrontMatterDelimiter + "\n")
	buf.Write(body)
	return buf.Bytes(), nil
}
