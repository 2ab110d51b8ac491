// Package editor keeps the open editor sessions and exposes them over a
// JSON HTTP API.
package editor

import (
	"context"
	"errors"
	"time"

	"github.com/debemdeboas/archive-editor/internal/document"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/debemdeboas/archive-editor/internal/session"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrForbidden       = errors.New("session belongs to another user")
)

var editorLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	editorLogger = l
}

type SessionID string

// Entry is one open session and the collaborators created for it.
type Entry struct {
	ID        SessionID
	Owner     model.UserID
	PostID    model.PostID
	CreatedAt time.Time

	Session   *session.Session
	Doc       *document.Buffer
	Confirmer *PendingConfirmer
}

type Repository interface {
	// Open starts a session on postID, or on a new post when postID is
	// empty.
	Open(ctx context.Context, owner model.UserID, postID model.PostID) (*Entry, error)
	Get(id SessionID, owner model.UserID) (*Entry, error)
	List(owner model.UserID) []*Entry
	Close(id SessionID, owner model.UserID) error
	CloseAll()

	// NotifyReload tells the sessions editing postID that it changed in
	// storage.
	NotifyReload(postID model.PostID)
}
