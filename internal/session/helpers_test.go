package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/debemdeboas/archive-editor/internal/analytics"
	"github.com/debemdeboas/archive-editor/internal/completion"
	"github.com/debemdeboas/archive-editor/internal/document"
	"github.com/debemdeboas/archive-editor/internal/model"
)

type fakeTimer struct {
	fs      *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.fs.mu.Lock()
	defer t.fs.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// fakeScheduler only runs timers when told to.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (fs *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	t := &fakeTimer{fs: fs, d: d, f: f}
	fs.timers = append(fs.timers, t)
	return t
}

func (fs *fakeScheduler) active() []*fakeTimer {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []*fakeTimer
	for _, t := range fs.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (fs *fakeScheduler) started() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.timers)
}

// fire runs every pending timer, as if the debounce window elapsed.
func (fs *fakeScheduler) fire() {
	fs.mu.Lock()
	var due []*fakeTimer
	for _, t := range fs.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	fs.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

type fakeStore struct {
	mu     sync.Mutex
	saves  []model.Draft
	fields []string
	fail   error
	// Saves block until hold is closed.
	hold chan struct{}
}

func (st *fakeStore) Save(ctx context.Context, d model.Draft) error {
	st.mu.Lock()
	hold := st.hold
	st.mu.Unlock()
	if hold != nil {
		<-hold
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.saves = append(st.saves, d)
	return st.fail
}

func (st *fakeStore) SetMetadataField(ctx context.Context, id model.PostID, field string, value any) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.fail != nil {
		return st.fail
	}
	st.fields = append(st.fields, field)
	return nil
}

func (st *fakeStore) saveCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.saves)
}

func (st *fakeStore) lastSave() model.Draft {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.saves[len(st.saves)-1]
}

// holdSaves makes saves block until the returned func is called.
func (st *fakeStore) holdSaves() (release func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	hold := make(chan struct{})
	st.hold = hold
	return func() {
		st.mu.Lock()
		st.hold = nil
		st.mu.Unlock()
		close(hold)
	}
}

func (st *fakeStore) setFail(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.fail = err
}

// fakeCompleter hands out streams that never produce anything on their
// own; tests drive onResponse directly.
type fakeCompleter struct {
	prompts chan string
	err     error
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{prompts: make(chan string, 8)}
}

func (c *fakeCompleter) Stream(ctx context.Context, prompt string) (completion.Stream, error) {
	c.prompts <- prompt
	if c.err != nil {
		return nil, c.err
	}
	return &blockingStream{ctx: ctx}, nil
}

type blockingStream struct {
	ctx context.Context
}

func (s *blockingStream) Next() bool {
	<-s.ctx.Done()
	return false
}

func (s *blockingStream) Delta() string { return "" }
func (s *blockingStream) Err() error    { return s.ctx.Err() }
func (s *blockingStream) Close() error  { return nil }

// scriptedCompleter streams its chunks as deltas, then fails with err if
// set.
type scriptedCompleter struct {
	chunks []string
	err    error
}

func (c *scriptedCompleter) Stream(ctx context.Context, prompt string) (completion.Stream, error) {
	return &scriptedStream{chunks: c.chunks, err: c.err}, nil
}

type scriptedStream struct {
	chunks []string
	delta  string
	err    error
	done   bool
}

func (s *scriptedStream) Next() bool {
	if len(s.chunks) == 0 {
		s.done = true
		return false
	}
	s.delta, s.chunks = s.chunks[0], s.chunks[1:]
	return true
}

func (s *scriptedStream) Delta() string { return s.delta }

func (s *scriptedStream) Err() error {
	if !s.done {
		return nil
	}
	return s.err
}

func (s *scriptedStream) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

type chanNotifier struct {
	messages chan string
}

func (n *chanNotifier) Notify(message string) {
	n.messages <- message
}

type fakeConfirmer struct {
	mu      sync.Mutex
	asked   chan string
	answers chan bool
	calls   int
}

func (c *fakeConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	c.asked <- message
	select {
	case ok := <-c.answers:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *fakeConfirmer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type harness struct {
	s         *Session
	doc       *document.Buffer
	store     *fakeStore
	sched     *fakeScheduler
	completer *fakeCompleter
	sink      *recordingSink
	notifier  *chanNotifier
	confirmer *fakeConfirmer
	tracker   *analytics.Counter
}

func newHarness(t *testing.T, persisted model.Draft) *harness {
	t.Helper()
	h := &harness{
		doc:       document.NewBuffer("", document.Options{HistoryLimit: 50}),
		store:     &fakeStore{},
		sched:     &fakeScheduler{},
		completer: newFakeCompleter(),
		sink:      &recordingSink{},
		notifier:  &chanNotifier{messages: make(chan string, 8)},
		confirmer: &fakeConfirmer{asked: make(chan string, 8), answers: make(chan bool, 8)},
		tracker:   analytics.NewCounter(nil),
	}
	h.s = New("test-session", h.doc, h.store, h.completer, persisted, Options{
		Debounce:         time.Second,
		SaveRetries:      0,
		SaveRetryBackoff: time.Millisecond,
		Scheduler:        h.sched,
		Sink:             h.sink,
		Notifier:         h.notifier,
		Confirmer:        h.confirmer,
		Tracker:          h.tracker,
	})
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) waitPrompt(t *testing.T) string {
	t.Helper()
	select {
	case p := <-h.completer.prompts:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a completion request")
		return ""
	}
}

func (h *harness) waitNotification(t *testing.T) string {
	t.Helper()
	select {
	case m := <-h.notifier.messages:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a notification")
		return ""
	}
}

func (h *harness) gen() uint64 {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.gen
}

func (h *harness) listeners() (keys, pointers int) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.keys.len(), h.s.pointers.len()
}

func (h *harness) text() string {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.doc.Text()
}

// waitSaves blocks until every save started so far has completed.
func (h *harness) waitSaves() {
	h.s.saves.Wait()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

var errDiskFull = errors.New("disk full")
