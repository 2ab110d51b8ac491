package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/debemdeboas/archive-editor/internal/model"
)

// DraftStore maps editor drafts onto posts of a PostRepository. It is the
// persistence collaborator of editor sessions.
type DraftStore struct {
	// mu makes the read-modify-write of Save atomic with field updates.
	mu   sync.Mutex
	repo PostRepository
}

func NewDraftStore(repo PostRepository) *DraftStore {
	return &DraftStore{repo: repo}
}

// Load returns the draft of an existing post.
func (s *DraftStore) Load(id model.PostID) (model.Draft, error) {
	post, err := s.repo.ReadPost(id)
	if err != nil {
		return model.Draft{}, err
	}
	return post.ToDraft(), nil
}

// Create persists an empty post owned by owner and returns its draft.
func (s *DraftStore) Create(ctx context.Context, owner model.UserID) (model.Draft, error) {
	post := s.repo.NewPost()
	post.Owner = owner
	if err := s.repo.SavePost(ctx, post); err != nil {
		return model.Draft{}, fmt.Errorf("error creating post: %w", err)
	}
	return post.ToDraft(), nil
}

// Save upserts the full draft. A draft without a stored post creates one
// under the draft's ID. The published flag of a stored post is kept, it only
// changes through SetMetadataField.
func (s *DraftStore) Save(ctx context.Context, d model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var post model.Post

	cached, err := s.repo.ReadPost(d.ID)
	switch {
	case err == nil:
		post = *cached
		d.Published = post.Published
	case errors.Is(err, ErrPostNotFound):
		post = *s.repo.NewPost()
		post.ID = d.ID
		post.Path = ""
	default:
		return err
	}

	post.ApplyDraft(d)
	if err := s.repo.SavePost(ctx, &post); err != nil {
		return err
	}
	return nil
}

// SetMetadataField updates a single field (published, title or description).
func (s *DraftStore) SetMetadataField(ctx context.Context, id model.PostID, field string, value any) error {
	if err := checkField(field, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.SetPostField(ctx, id, field, value)
}
