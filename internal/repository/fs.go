package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/debemdeboas/archive-editor/internal/util"
	"github.com/google/uuid"
)

// fsFrontMatter is the TOML block written at the top of every post file.
type fsFrontMatter struct {
	Title       string   `toml:"title"`
	Description string   `toml:"description,omitempty"`
	Published   bool     `toml:"published"`
	Slides      []string `toml:"slides"`
	Owner       string   `toml:"owner,omitempty"`
}

// FSPostRepository keeps one markdown file per post. Metadata lives in the
// front matter and the file name without extension identifies the post.
type FSPostRepository struct { // implements PostRepository
	postIndex

	postsPath    string
	reloadPeriod time.Duration
}

func NewFSPostRepository(postsPath string, reloadPeriod time.Duration) *FSPostRepository {
	return &FSPostRepository{
		postIndex:    newPostIndex(),
		postsPath:    postsPath,
		reloadPeriod: reloadPeriod,
	}
}

func (r *FSPostRepository) Init(ctx context.Context) error {
	if err := os.MkdirAll(r.postsPath, 0o755); err != nil {
		return fmt.Errorf("error creating posts directory: %w", err)
	}
	posts, err := r.GetPosts()
	if err != nil {
		return err
	}
	r.replace(posts)

	go poll(ctx, r.reloadPeriod, r.ReloadPosts)
	return nil
}

func (r *FSPostRepository) GetPosts() ([]model.Post, error) {
	entries, err := os.ReadDir(r.postsPath)
	if err != nil {
		return nil, fmt.Errorf("error reading posts directory: %w", err)
	}

	posts := make([]model.Post, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		post, err := r.readFile(filepath.Join(r.postsPath, entry.Name()))
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (r *FSPostRepository) readFile(path string) (model.Post, error) {
	name := strings.TrimSuffix(filepath.Base(path), ".md")

	mdContent, err := os.ReadFile(path)
	if err != nil {
		return model.Post{}, fmt.Errorf("error reading %s: %w", path, err)
	}
	fileInfo, err := os.Stat(path)
	if err != nil {
		return model.Post{}, fmt.Errorf("error reading %s: %w", path, err)
	}

	post := model.Post{
		ID:            model.PostID(name),
		Title:         name,
		Path:          path,
		Markdown:      mdContent,
		MDContentHash: util.ContentHash(mdContent),
		Slides:        []string{},
		CreatedDate:   fileInfo.ModTime(),
		ModifiedDate:  fileInfo.ModTime(),
	}

	info, err := util.GetFrontMatter(mdContent)
	switch {
	case err == nil:
		post.Info = info
		post.Markdown = util.StripFrontMatter(mdContent)
		if info.Title != "" {
			post.Title = info.Title
		}
		post.Description = info.Description
		post.Published = info.Published
		post.Owner = model.UserID(info.Owner)
		if info.Slides != nil {
			post.Slides = info.Slides
		}
	case errors.Is(err, util.ErrNoFrontMatter):
	default:
		repoLogger.Warn().Err(err).Str("path", path).Msg("Ignoring malformed front matter")
	}

	return post, nil
}

func (r *FSPostRepository) ReloadPosts(ctx context.Context) {
	posts, err := r.GetPosts()
	if err != nil {
		repoLogger.Error().Err(err).Msg(config.ErrReloadingPosts)
		return
	}
	r.notify(r.replace(posts))
}

func (r *FSPostRepository) NewPost() *model.Post {
	now := time.Now().UTC()
	id := uuid.New().String()

	return &model.Post{
		ID:           model.PostID(id),
		Path:         filepath.Join(r.postsPath, id+".md"),
		Slides:       []string{},
		CreatedDate:  now,
		ModifiedDate: now,
	}
}

func (r *FSPostRepository) SavePost(ctx context.Context, post *model.Post) error {
	if post.Path == "" {
		post.Path = filepath.Join(r.postsPath, string(post.ID)+".md")
	}

	fm := fsFrontMatter{
		Title:       post.Title,
		Description: post.Description,
		Published:   post.Published,
		Slides:      model.CloneSlides(post.Slides),
		Owner:       string(post.Owner),
	}
	data, err := util.EncodeFrontMatter(fm, post.Markdown)
	if err != nil {
		return err
	}

	// Write then rename so the reload loop never reads a partial file.
	tmp := post.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing post: %w", err)
	}
	if err := os.Rename(tmp, post.Path); err != nil {
		return fmt.Errorf("error writing post: %w", err)
	}

	post.MDContentHash = util.ContentHash(data)
	post.ModifiedDate = time.Now().UTC()
	r.put(*post)

	repoLogger.Debug().Str("post_id", string(post.ID)).Str("path", post.Path).Msg("Post saved")
	return nil
}

func (r *FSPostRepository) SetPostField(ctx context.Context, id model.PostID, field string, value any) error {
	if err := checkField(field, value); err != nil {
		return err
	}
	cached, err := r.ReadPost(id)
	if err != nil {
		return err
	}

	post := *cached
	applyField(&post, field, value)
	return r.SavePost(ctx, &post)
}
