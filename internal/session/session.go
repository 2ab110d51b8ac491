// Package session implements an editor session: a draft of one post kept in
// sync with storage, with AI completion inserted into the document as it
// streams.
//
// Every exported method and every asynchronous callback (timers, streams,
// saves, confirmations) runs under one mutex, so updates are applied
// atomically and in arrival order.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/debemdeboas/archive-editor/internal/analytics"
	"github.com/debemdeboas/archive-editor/internal/completion"
	"github.com/debemdeboas/archive-editor/internal/document"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/rs/zerolog"
)

var ErrClosed = errors.New("session closed")

var sessionLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sessionLogger = l
}

// Store persists drafts.
type Store interface {
	Save(ctx context.Context, d model.Draft) error
	SetMetadataField(ctx context.Context, id model.PostID, field string, value any) error
}

type Options struct {
	Debounce         time.Duration
	Marker           string
	SaveRetries      int
	SaveRetryBackoff time.Duration

	Scheduler Scheduler
	Sink      Sink
	Notifier  Notifier
	Confirmer Confirmer
	Tracker   analytics.Tracker
}

const (
	DefaultDebounce = 750 * time.Millisecond
	DefaultMarker   = "++"

	ContinuePrompt = "AI writing paused. Continue?"
)

func (o *Options) applyDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if len([]rune(o.Marker)) == 0 {
		o.Marker = DefaultMarker
	}
	if o.Scheduler == nil {
		o.Scheduler = realScheduler{}
	}
	if o.Sink == nil {
		o.Sink = nopSink{}
	}
	if o.Notifier == nil {
		o.Notifier = sinkNotifier{sink: o.Sink}
	}
	if o.Confirmer == nil {
		o.Confirmer = rejectConfirmer{}
	}
}

type Session struct {
	mu sync.Mutex

	id        string
	doc       document.Document
	store     Store
	completer completion.Completer
	opt       Options
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	draft    model.Draft
	baseline model.Draft
	status   SaveStatus
	lastErr  string

	timer    Timer
	timerGen uint64
	inflight int
	saves    sync.WaitGroup
	// saveSeq numbers every save started, savedSeq is the newest one that
	// succeeded.
	saveSeq  uint64
	savedSeq uint64

	keys     listenerSet[keyListener]
	pointers listenerSet[pointerListener]
	saveSub  *Subscription

	completionMachine

	started  bool
	hydrated bool
	closed   bool
}

// New creates a session for persisted. The document is not touched until
// Start.
func New(id string, doc document.Document, store Store, completer completion.Completer, persisted model.Draft, opt Options) *Session {
	opt.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		id:        id,
		doc:       doc,
		store:     store,
		completer: completer,
		opt:       opt,
		log:       sessionLogger.With().Str("session", id).Str("post_id", string(persisted.ID)).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		draft:     persisted.Clone(),
		baseline:  persisted.Clone(),
		status:    StatusSaved,
	}
}

func (s *Session) ID() string { return s.id }

// Start subscribes the save shortcut and hydrates an empty document from
// the persisted content. Calling it again does nothing.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		return
	}
	s.started = true
	s.saveSub = s.keys.subscribe(s.onSaveShortcut)

	if !s.hydrated {
		s.hydrated = true
		if s.baseline.Content != "" && s.doc.Len() == 0 {
			s.doc.SetContent(s.baseline.Content)
			s.log.Debug().Int("len", s.doc.Len()).Msg("Document hydrated")
		}
	}

	s.publishDocumentLocked()
	s.publishStatusLocked()
}

// Close stops the completion and the debounce timer, releases every
// listener and waits for in-flight saves. The document is copied into the
// draft and a draft that differs from the last save is saved first.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.abortCompletionLocked()
	s.stopTimerLocked()
	if s.started {
		s.draft.Content = s.doc.Serialize()
	}
	if !s.draft.SameContent(s.baseline) {
		s.flushLocked()
	}
	s.saveSub.Release()
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.saves.Wait()
	s.log.Debug().Msg("Session closed")
}

// ObservePersisted is told about changes made to the post outside this
// session. The local draft stays the source of truth, so it is only logged.
func (s *Session) ObservePersisted(d model.Draft) {
	s.log.Info().Str("post_id", string(d.ID)).Msg("Post changed elsewhere, keeping local draft")
}

// Draft returns a copy of the current draft.
func (s *Session) Draft() model.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

func (s *Session) Status() SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) CompletionState() CompletionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View is a point in time copy of the session state.
type View struct {
	ID         string         `json:"id"`
	Draft      model.Draft    `json:"draft"`
	Document   string         `json:"document"`
	Selection  document.Range `json:"selection"`
	Status     SaveStatus     `json:"status"`
	Error      string         `json:"error,omitempty"`
	Completion string         `json:"completion"`
	CanUndo    bool           `json:"can_undo"`
	CanRedo    bool           `json:"can_redo"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:         s.id,
		Draft:      s.draft.Clone(),
		Document:   s.doc.Serialize(),
		Selection:  s.doc.Selection(),
		Status:     s.status,
		Error:      s.lastErr,
		Completion: s.state.String(),
	}
	if u, ok := s.doc.(document.Undoer); ok {
		v.CanUndo, v.CanRedo = u.CanUndo(), u.CanRedo()
	}
	return v
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.draft.Title = title
	s.changedLocked()
}

func (s *Session) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.draft.Description = description
	s.changedLocked()
}

// InsertText types text at the cursor, replacing the selection.
func (s *Session) InsertText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.editLocked(func() { s.doc.InsertText(text) })
}

func (s *Session) SetSelection(start, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.interruptCompletionLocked()
	s.doc.SetSelection(start, end)
	s.publishDocumentLocked()
}

// KeyDown dispatches a key-down to the subscribed listeners and runs the
// default action unless one of them prevented it. It reports whether the
// default was prevented.
func (s *Session) KeyDown(ev KeyEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	prevent := false
	for _, e := range s.keys.snapshot() {
		if !e.sub.Active() {
			continue
		}
		if e.fn(ev) {
			prevent = true
		}
	}
	if !prevent {
		s.defaultKeyLocked(ev)
	}
	return prevent
}

// PointerDown dispatches a pointer-down. A non-negative pos then moves the
// cursor there.
func (s *Session) PointerDown(pos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for _, e := range s.pointers.snapshot() {
		if e.sub.Active() {
			e.fn()
		}
	}
	if pos >= 0 {
		s.doc.SetSelection(pos, pos)
		s.publishDocumentLocked()
	}
}

type backwardDeleter interface {
	DeleteBackward()
}

func (s *Session) defaultKeyLocked(ev KeyEvent) {
	switch {
	case ev.IsMod("z") && ev.Shift, ev.IsMod("y"):
		s.historyLocked(document.Undoer.Redo)
	case ev.IsMod("z"):
		s.historyLocked(document.Undoer.Undo)
	case ev.Mod() || ev.Alt:
	case ev.Key == "Backspace":
		s.editLocked(func() {
			if d, ok := s.doc.(backwardDeleter); ok {
				d.DeleteBackward()
			} else if sel := s.doc.Selection(); !sel.IsEmpty() {
				s.doc.Delete(sel.Start, sel.End)
			} else {
				s.doc.Delete(sel.End-1, sel.End)
			}
		})
	case ev.Key == "Enter":
		s.editLocked(func() { s.doc.InsertText("\n") })
	case len([]rune(ev.Key)) == 1:
		s.editLocked(func() { s.doc.InsertText(ev.Key) })
	}
}

// historyLocked runs an undo or redo step on documents that keep a history.
func (s *Session) historyLocked(step func(document.Undoer) bool) {
	u, ok := s.doc.(document.Undoer)
	if !ok {
		return
	}
	s.interruptCompletionLocked()
	if step(u) {
		s.syncContentLocked()
	}
}

// editLocked applies a user edit to the document. A running completion is
// cancelled before the edit, and that edit cannot trigger a new one.
func (s *Session) editLocked(edit func()) {
	interrupted := s.interruptCompletionLocked()
	edit()
	if !interrupted && s.triggerLocked() {
		return
	}
	s.syncContentLocked()
}

// syncContentLocked copies the serialized document into the draft.
func (s *Session) syncContentLocked() {
	s.draft.Content = s.doc.Serialize()
	s.changedLocked()
}

func (s *Session) publishDocumentLocked() {
	s.opt.Sink.Publish(Event{Name: EventDocument, Data: DocumentEvent{
		Content:   s.doc.Serialize(),
		Selection: s.doc.Selection(),
		Draft:     s.draft.Clone(),
	}})
}
