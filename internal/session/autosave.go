package session

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/debemdeboas/archive-editor/internal/model"
)

type SaveStatus string

const (
	StatusSaved  SaveStatus = "saved"
	StatusSaving SaveStatus = "saving"
	StatusFailed SaveStatus = "save-failed"
)

// changedLocked runs after every draft mutation. A draft equal to the
// baseline cancels the pending save, anything else restarts the debounce.
func (s *Session) changedLocked() {
	s.publishDocumentLocked()

	if s.draft.SameContent(s.baseline) {
		s.stopTimerLocked()
		return
	}

	s.stopTimerLocked()
	s.armTimerLocked()
}

func (s *Session) armTimerLocked() {
	s.timerGen++
	gen := s.timerGen
	s.timer = s.opt.Scheduler.AfterFunc(s.opt.Debounce, func() { s.onDebounce(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) onDebounce(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.timerGen {
		return
	}
	s.timer = nil
	if s.draft.SameContent(s.baseline) {
		return
	}
	s.flushLocked()
}

func (s *Session) onSaveShortcut(ev KeyEvent) bool {
	if !ev.IsMod("s") {
		return false
	}
	s.stopTimerLocked()
	s.flushLocked()
	return true
}

// Save persists the draft now, bypassing the debounce.
func (s *Session) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.stopTimerLocked()
	s.flushLocked()
	return nil
}

// flushLocked starts a save of a snapshot of the draft.
func (s *Session) flushLocked() {
	snapshot := s.draft.Clone()
	s.inflight++
	s.saveSeq++
	s.setStatusLocked(StatusSaving, "")

	s.saves.Add(1)
	go s.persist(s.saveSeq, snapshot)
}

func (s *Session) persist(seq uint64, snapshot model.Draft) {
	defer s.saves.Done()

	// Saves are never cancelled, not even by Close.
	ctx := context.WithoutCancel(s.ctx)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opt.SaveRetryBackoff
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return s.store.Save(ctx, snapshot)
	}, backoff.WithMaxRetries(policy, uint64(max(s.opt.SaveRetries, 0))))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSaved(seq, snapshot, attempt, err)
}

// onSaved records the outcome of save seq. A save that lands after a newer
// one already succeeded does not move the baseline back.
func (s *Session) onSaved(seq uint64, snapshot model.Draft, attempts int, err error) {
	s.inflight--

	if err != nil {
		s.log.Error().Err(err).Int("attempts", attempts).Uint64("seq", seq).Msg("Error saving draft")
		if seq < s.savedSeq {
			if s.inflight == 0 {
				s.setStatusLocked(StatusSaved, "")
			}
			return
		}
		s.setStatusLocked(StatusFailed, err.Error())
		s.opt.Notifier.Notify(fmt.Sprintf("Failed to save post: %v", err))
		return
	}

	s.log.Debug().Int("attempts", attempts).Uint64("seq", seq).Msg("Draft saved")
	if seq > s.savedSeq {
		s.savedSeq = seq
		s.baseline = snapshot
		// Published is only changed through SetMetadataField.
		s.baseline.Published = s.draft.Published
	}

	// The draft may have moved on, or back, while the save was running.
	if !s.closed && s.timer == nil && !s.draft.SameContent(s.baseline) {
		s.armTimerLocked()
	}
	if s.inflight == 0 {
		s.setStatusLocked(StatusSaved, "")
	}
}

func (s *Session) setStatusLocked(status SaveStatus, errMsg string) {
	s.status = status
	s.lastErr = errMsg
	s.publishStatusLocked()
}

func (s *Session) publishStatusLocked() {
	s.opt.Sink.Publish(Event{Name: EventStatus, Data: StatusEvent{Status: s.status, Error: s.lastErr}})
}

// Publish marks the post as published.
func (s *Session) Publish(ctx context.Context) error {
	return s.setPublished(ctx, true)
}

func (s *Session) Unpublish(ctx context.Context) error {
	return s.setPublished(ctx, false)
}

func (s *Session) setPublished(ctx context.Context, published bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	id := s.draft.ID
	s.mu.Unlock()

	err := s.store.SetMetadataField(ctx, id, "published", published)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Bool("published", published).Msg("Error setting published flag")
		s.opt.Notifier.Notify(fmt.Sprintf("Failed to update post: %v", err))
		return fmt.Errorf("error setting published flag: %w", err)
	}
	s.draft.Published = published
	s.baseline.Published = published
	s.publishDocumentLocked()
	return nil
}
