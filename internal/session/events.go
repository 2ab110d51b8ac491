package session

import (
	"context"
	"time"

	"github.com/debemdeboas/archive-editor/internal/document"
	"github.com/debemdeboas/archive-editor/internal/model"
)

// Event names published to a Sink.
const (
	EventDocument     = "document"
	EventStatus       = "status"
	EventCompletion   = "completion"
	EventNotification = "notification"
	EventConfirm      = "confirm"
)

type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Sink receives session events. Publish must not block.
type Sink interface {
	Publish(Event)
}

type Notifier interface {
	Notify(message string)
}

// Confirmer asks the user a yes/no question and waits for the answer.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type DocumentEvent struct {
	Content   string         `json:"content"`
	Selection document.Range `json:"selection"`
	Draft     model.Draft    `json:"draft"`
}

type StatusEvent struct {
	Status SaveStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

type CompletionEvent struct {
	State    string `json:"state"`
	Inserted int    `json:"inserted"`
}

type NotificationEvent struct {
	Message string `json:"message"`
}

// ConfirmEvent asks the client a question; the answer is sent back with
// the same token.
type ConfirmEvent struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

// sinkNotifier turns notifications into events.
type sinkNotifier struct {
	sink Sink
}

func (n sinkNotifier) Notify(message string) {
	n.sink.Publish(Event{Name: EventNotification, Data: NotificationEvent{Message: message}})
}

type rejectConfirmer struct{}

func (rejectConfirmer) Confirm(context.Context, string) (bool, error) { return false, nil }
