package editor

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/debemdeboas/archive-editor/internal/session"
	"github.com/google/uuid"
)

var ErrNoPendingConfirm = errors.New("no pending confirmation")

// PendingConfirmer asks questions through a session's event sink and waits
// for the answer to come back through Answer. Unanswered questions stay
// listed in Pending, so a client that missed the event can still answer.
type PendingConfirmer struct {
	sink session.Sink

	mu      sync.Mutex
	pending map[string]question
}

type question struct {
	message string
	answer  chan bool
}

func NewPendingConfirmer(sink session.Sink) *PendingConfirmer {
	return &PendingConfirmer{
		sink:    sink,
		pending: make(map[string]question),
	}
}

func (c *PendingConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	token := uuid.NewString()
	answer := make(chan bool, 1)

	c.mu.Lock()
	c.pending[token] = question{message: message, answer: answer}
	c.mu.Unlock()

	c.sink.Publish(session.Event{
		Name: session.EventConfirm,
		Data: session.ConfirmEvent{Token: token, Message: message},
	})

	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, token)
		c.mu.Unlock()
		return false, ctx.Err()
	}
}

// Answer resolves the question identified by token.
func (c *PendingConfirmer) Answer(token string, accepted bool) error {
	c.mu.Lock()
	q, ok := c.pending[token]
	delete(c.pending, token)
	c.mu.Unlock()

	if !ok {
		return ErrNoPendingConfirm
	}
	q.answer <- accepted
	return nil
}

// Pending returns the unanswered questions ordered by token.
func (c *PendingConfirmer) Pending() []session.ConfirmEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]session.ConfirmEvent, 0, len(c.pending))
	for token, q := range c.pending {
		out = append(out, session.ConfirmEvent{Token: token, Message: q.message})
	}
	slices.SortFunc(out, func(a, b session.ConfirmEvent) int { return strings.Compare(a.Token, b.Token) })
	return out
}
