// Package repository stores posts and maps editor drafts onto them.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/debemdeboas/archive-editor/internal/cache"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/rs/zerolog"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrUnknownField      = errors.New("unknown post field")
	ErrInvalidFieldValue = errors.New("invalid post field value")
)

// Metadata fields accepted by SetPostField.
const (
	FieldPublished   = "published"
	FieldTitle       = "title"
	FieldDescription = "description"
)

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

type PostRepository interface {
	// Init loads every post and starts watching the backend for changes
	// until ctx is cancelled.
	Init(ctx context.Context) error
	GetPostList() []model.Post
	ReadPost(id model.PostID) (*model.Post, error)
	NewPost() *model.Post
	// SavePost inserts or replaces the post.
	SavePost(ctx context.Context, post *model.Post) error
	SetPostField(ctx context.Context, id model.PostID, field string, value any) error

	// SetReloadNotifier sets a function that will be called when a post
	// changes in the backend without going through this repository.
	SetReloadNotifier(notifier func(model.PostID))
}

// checkField validates a SetPostField pair.
func checkField(field string, value any) error {
	switch field {
	case FieldPublished:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %s must be a bool, got %T", ErrInvalidFieldValue, field, value)
		}
	case FieldTitle, FieldDescription:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidFieldValue, field, value)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// applyField sets a validated field on post.
func applyField(post *model.Post, field string, value any) {
	switch field {
	case FieldPublished:
		post.Published = value.(bool)
	case FieldTitle:
		post.Title = value.(string)
	case FieldDescription:
		post.Description = value.(string)
	}
}

// postIndex is the in-memory view of a backend shared by every repository.
type postIndex struct {
	mu     sync.RWMutex
	posts  *cache.Cache[model.PostID, *model.Post]
	sorted []model.Post

	reloadNotifier func(model.PostID)
}

func newPostIndex() postIndex {
	return postIndex{
		posts: cache.NewCache[model.PostID, *model.Post](),
	}
}

func (x *postIndex) SetReloadNotifier(notifier func(model.PostID)) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.reloadNotifier = notifier
}

func (x *postIndex) GetPostList() []model.Post {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.sorted)
}

func (x *postIndex) ReadPost(id model.PostID) (*model.Post, error) {
	post, ok := x.posts.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	return post, nil
}

// replace swaps the whole index and returns the IDs of known posts whose
// content hash changed.
func (x *postIndex) replace(posts []model.Post) []model.PostID {
	x.mu.Lock()
	defer x.mu.Unlock()

	var changed []model.PostID
	for _, p := range posts {
		if old, ok := x.posts.Get(p.ID); ok && old.MDContentHash != p.MDContentHash {
			repoLogger.Info().
				Str("post_id", string(p.ID)).
				Str("title", p.Title).
				Msg("Post content changed")
			changed = append(changed, p.ID)
		}
	}

	sortPosts(posts)
	x.sorted = posts
	x.posts.Clear()
	for i := range posts {
		p := posts[i]
		x.posts.Set(p.ID, &p)
	}
	return changed
}

// put stores a single post saved through the repository.
func (x *postIndex) put(post model.Post) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.posts.Set(post.ID, &post)
	idx := slices.IndexFunc(x.sorted, func(p model.Post) bool { return p.ID == post.ID })
	if idx >= 0 {
		x.sorted[idx] = post
	} else {
		x.sorted = append(x.sorted, post)
	}
	sortPosts(x.sorted)
}

func (x *postIndex) notify(ids []model.PostID) {
	x.mu.RLock()
	notifier := x.reloadNotifier
	x.mu.RUnlock()

	if notifier == nil {
		return
	}
	for _, id := range ids {
		go notifier(id)
	}
}

// Most recently modified first.
func sortPosts(posts []model.Post) {
	slices.SortStableFunc(posts, func(a, b model.Post) int {
		return -a.ModifiedDate.Compare(b.ModifiedDate)
	})
}

// poll runs reload every period until ctx is done.
func poll(ctx context.Context, period time.Duration, reload func(context.Context)) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			repoLogger.Debug().Msg("Stopping post reload loop")
			return
		case <-ticker.C:
			reload(ctx)
		}
	}
}
