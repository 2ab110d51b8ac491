package session

import (
	"context"
	"strings"

	"github.com/debemdeboas/archive-editor/internal/analytics"
	"github.com/debemdeboas/archive-editor/internal/completion"
)

type CompletionState int

const (
	Idle CompletionState = iota
	Requesting
	Streaming
	Finished
	Cancelled
	Errored
	// Confirming waits for the user to decide whether a paused completion
	// continues.
	Confirming
)

var completionStateNames = [...]string{
	Idle:       "idle",
	Requesting: "requesting",
	Streaming:  "streaming",
	Finished:   "finished",
	Cancelled:  "cancelled",
	Errored:    "errored",
	Confirming: "confirming",
}

func (c CompletionState) String() string {
	if c < 0 || int(c) >= len(completionStateNames) {
		return "unknown"
	}
	return completionStateNames[c]
}

// activeCompletion lives for one request/stream cycle.
type activeCompletion struct {
	prompt   string
	response string
	// Runes inserted into the document so far.
	inserted int
	// Cursor offset at which the completion started.
	origin int
	cancel context.CancelFunc
	gen    uint64
}

type completionMachine struct {
	state CompletionState
	// Bumped whenever a completion starts or stops; callbacks carrying an
	// older value are dropped.
	gen    uint64
	active *activeCompletion

	cancelKeySub     *Subscription
	cancelPointerSub *Subscription
	confirmToken     uint64
}

func (s *Session) setStateLocked(state CompletionState) {
	s.state = state
	inserted := 0
	if s.active != nil {
		inserted = s.active.inserted
	}
	s.opt.Sink.Publish(Event{Name: EventCompletion, Data: CompletionEvent{State: state.String(), Inserted: inserted}})
}

// triggerLocked starts a completion when the runes before the cursor are
// the marker. It reports whether it did.
func (s *Session) triggerLocked() bool {
	if s.state != Idle || s.completer == nil {
		return false
	}
	n := len([]rune(s.opt.Marker))
	cursor := s.doc.Cursor()
	if cursor < n || s.doc.TextBetween(cursor-n, cursor) != s.opt.Marker {
		return false
	}

	s.doc.Delete(cursor-n, cursor)
	s.startCompletionLocked()
	return true
}

func (s *Session) buildPromptLocked(cursor int) string {
	return strings.Join([]string{
		s.draft.Title,
		s.draft.Description,
		s.doc.TextBetween(0, cursor),
	}, "\n\n")
}

// startCompletionLocked is the Idle/Confirming -> Requesting transition.
func (s *Session) startCompletionLocked() {
	origin := s.doc.Cursor()
	prompt := s.buildPromptLocked(origin)

	s.gen++
	ctx, cancel := context.WithCancel(s.ctx)
	s.active = &activeCompletion{
		prompt: prompt,
		origin: origin,
		cancel: cancel,
		gen:    s.gen,
	}

	s.cancelKeySub = s.keys.subscribe(s.onCancelKey)
	s.cancelPointerSub = s.pointers.subscribe(s.onCancelPointer)
	s.setStateLocked(Requesting)
	s.publishDocumentLocked()

	s.log.Debug().Int("origin", origin).Msg("Completion requested")
	go s.runCompletion(ctx, s.gen, prompt)
}

func (s *Session) runCompletion(ctx context.Context, gen uint64, prompt string) {
	stream, err := s.completer.Stream(ctx, prompt)
	if err != nil {
		s.onCompletionError(gen, err)
		return
	}
	defer stream.Close()

	var response strings.Builder
	for stream.Next() {
		response.WriteString(stream.Delta())
		if !s.onResponse(gen, response.String()) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		s.onCompletionError(gen, err)
		return
	}
	s.onCompletionFinish(gen)
}

// onResponse inserts the part of response not seen before at the cursor.
// It returns false once gen is stale.
func (s *Session) onResponse(gen uint64, response string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.active
	if c == nil || c.gen != gen || s.gen != gen {
		return false
	}
	if s.state == Requesting {
		s.setStateLocked(Streaming)
	}

	seen := len([]rune(c.response))
	runes := []rune(response)
	c.response = response
	if len(runes) <= seen {
		return true
	}

	s.doc.InsertAt(s.doc.Cursor(), string(runes[seen:]))
	c.inserted += len(runes) - seen
	s.publishDocumentLocked()
	return true
}

// onCompletionFinish selects the generated span and returns to Idle.
func (s *Session) onCompletionFinish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.active
	if c == nil || c.gen != gen || s.gen != gen {
		return
	}
	cursor := s.doc.Cursor()
	s.doc.SetSelection(cursor-len([]rune(c.response)), cursor)
	s.log.Debug().Int("inserted", c.inserted).Msg("Completion finished")
	s.endCompletionLocked(Finished)
}

func (s *Session) onCompletionError(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.active
	if c == nil || c.gen != gen || s.gen != gen {
		return
	}

	message := err.Error()
	if completion.IsRequestLimit(err) {
		message = completion.RequestLimitMessage
		if s.opt.Tracker != nil {
			s.opt.Tracker.Track(analytics.EventRateLimitReached, map[string]any{
				"session": s.id,
				"post_id": string(s.draft.ID),
			})
		}
	}
	s.log.Error().Err(err).Msg("Completion failed")
	s.opt.Notifier.Notify(message)
	s.endCompletionLocked(Errored)
}

// stopStreamLocked cancels the active stream and releases its listeners.
func (s *Session) stopStreamLocked() *activeCompletion {
	c := s.active
	if c == nil {
		return nil
	}
	c.cancel()
	s.gen++
	s.cancelKeySub.Release()
	s.cancelPointerSub.Release()
	s.cancelKeySub, s.cancelPointerSub = nil, nil
	return c
}

// endCompletionLocked passes through a terminal state back to Idle.
func (s *Session) endCompletionLocked(terminal CompletionState) {
	s.stopStreamLocked()
	s.setStateLocked(terminal)
	s.active = nil
	s.setStateLocked(Idle)
	s.syncContentLocked()
}

// interruptCompletionLocked cancels a requesting or streaming completion,
// keeping what it inserted. It reports whether there was one.
func (s *Session) interruptCompletionLocked() bool {
	if s.state != Requesting && s.state != Streaming {
		return false
	}
	s.log.Debug().Int("inserted", s.active.inserted).Msg("Completion interrupted by an edit")
	s.endCompletionLocked(Cancelled)
	return true
}

// abortCompletionLocked drops any completion or pending confirmation
// without touching the document.
func (s *Session) abortCompletionLocked() {
	s.stopStreamLocked()
	s.active = nil
	s.confirmToken++
	s.state = Idle
}

// onCancelKey is subscribed only while a completion is active.
func (s *Session) onCancelKey(ev KeyEvent) bool {
	if s.state != Requesting && s.state != Streaming {
		return false
	}
	switch {
	case ev.Key == "Escape":
		c := s.active
		s.doc.Delete(c.origin, c.origin+c.inserted)
		s.doc.InsertAt(c.origin, s.opt.Marker)
		s.log.Debug().Int("removed", c.inserted).Msg("Completion cancelled")
		s.endCompletionLocked(Cancelled)
		return true
	case ev.IsMod("z"):
		// The default undo still runs.
		s.endCompletionLocked(Cancelled)
		return false
	}
	return false
}

// onCancelPointer pauses the completion and asks whether to continue.
func (s *Session) onCancelPointer() {
	if s.state != Requesting && s.state != Streaming {
		return
	}
	s.stopStreamLocked()
	s.active = nil
	s.setStateLocked(Confirming)

	s.confirmToken++
	token := s.confirmToken
	go s.askContinue(token)
}

func (s *Session) askContinue(token uint64) {
	ok, err := s.opt.Confirmer.Confirm(s.ctx, ContinuePrompt)
	s.onContinueAnswer(token, ok, err)
}

// onContinueAnswer restarts the completion from the current cursor when
// the user accepted.
func (s *Session) onContinueAnswer(token uint64, accepted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != Confirming || token != s.confirmToken {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Continuation prompt failed")
	}
	if err != nil || !accepted {
		s.setStateLocked(Idle)
		s.syncContentLocked()
		return
	}
	s.startCompletionLocked()
}
