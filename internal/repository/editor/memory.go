package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/debemdeboas/archive-editor/internal/analytics"
	"github.com/debemdeboas/archive-editor/internal/completion"
	"github.com/debemdeboas/archive-editor/internal/document"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/debemdeboas/archive-editor/internal/repository"
	"github.com/debemdeboas/archive-editor/internal/session"
	"github.com/debemdeboas/archive-editor/internal/sse"
	"github.com/google/uuid"
)

// SessionOptions configures every session opened by a MemoryRepository.
type SessionOptions struct {
	Debounce         time.Duration
	Marker           string
	SaveRetries      int
	SaveRetryBackoff time.Duration
	UndoLimit        int
	Tracker          analytics.Tracker
}

// MemoryRepository keeps open sessions in process memory.
type MemoryRepository struct {
	sessions sync.Map

	store     *repository.DraftStore
	completer completion.Completer
	clients   *sse.SSEClients
	opt       SessionOptions
}

func NewMemoryRepository(store *repository.DraftStore, completer completion.Completer, clients *sse.SSEClients, opt SessionOptions) *MemoryRepository {
	return &MemoryRepository{
		store:     store,
		completer: completer,
		clients:   clients,
		opt:       opt,
	}
}

func (m *MemoryRepository) Open(ctx context.Context, owner model.UserID, postID model.PostID) (*Entry, error) {
	var (
		draft model.Draft
		err   error
	)
	if postID == "" {
		draft, err = m.store.Create(ctx, owner)
	} else {
		draft, err = m.store.Load(postID)
	}
	if err != nil {
		return nil, err
	}
	if draft.Owner != "" && draft.Owner != owner {
		return nil, ErrForbidden
	}

	id := SessionID(uuid.NewString())
	sink := m.clients.Sink(string(id))
	doc := document.NewBuffer("", document.Options{HistoryLimit: m.opt.UndoLimit})
	confirmer := NewPendingConfirmer(sink)

	s := session.New(string(id), doc, m.store, m.completer, draft, session.Options{
		Debounce:         m.opt.Debounce,
		Marker:           m.opt.Marker,
		SaveRetries:      m.opt.SaveRetries,
		SaveRetryBackoff: m.opt.SaveRetryBackoff,
		Sink:             sink,
		Confirmer:        confirmer,
		Tracker:          m.opt.Tracker,
	})

	entry := &Entry{
		ID:        id,
		Owner:     owner,
		PostID:    draft.ID,
		CreatedAt: time.Now(),
		Session:   s,
		Doc:       doc,
		Confirmer: confirmer,
	}
	m.sessions.Store(id, entry)
	s.Start()

	editorLogger.Info().Str("session", string(id)).Str("post_id", string(draft.ID)).Str("owner", string(owner)).Msg("Session opened")
	return entry, nil
}

func (m *MemoryRepository) Get(id SessionID, owner model.UserID) (*Entry, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	entry := v.(*Entry)
	if entry.Owner != owner {
		return nil, ErrForbidden
	}
	return entry, nil
}

func (m *MemoryRepository) List(owner model.UserID) []*Entry {
	var out []*Entry
	m.sessions.Range(func(_, v any) bool {
		if e := v.(*Entry); e.Owner == owner {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Close unmounts the session: pending changes are saved and its event
// stream ends.
func (m *MemoryRepository) Close(id SessionID, owner model.UserID) error {
	entry, err := m.Get(id, owner)
	if err != nil {
		return err
	}
	if _, loaded := m.sessions.LoadAndDelete(id); !loaded {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	entry.Session.Close()
	m.clients.CloseSession(string(id))
	editorLogger.Info().Str("session", string(id)).Msg("Session closed")
	return nil
}

func (m *MemoryRepository) CloseAll() {
	m.sessions.Range(func(k, v any) bool {
		entry := v.(*Entry)
		m.sessions.Delete(k)
		entry.Session.Close()
		m.clients.CloseSession(string(entry.ID))
		return true
	})
}

func (m *MemoryRepository) NotifyReload(postID model.PostID) {
	m.sessions.Range(func(_, v any) bool {
		entry := v.(*Entry)
		if entry.PostID != postID {
			return true
		}
		draft, err := m.store.Load(postID)
		if err != nil {
			editorLogger.Warn().Err(err).Str("post_id", string(postID)).Msg("Error reading reloaded post")
			return true
		}
		entry.Session.ObservePersisted(draft)
		return true
	})
}
