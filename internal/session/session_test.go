package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/debemdeboas/archive-editor/internal/analytics"
	"github.com/debemdeboas/archive-editor/internal/completion"
	"github.com/debemdeboas/archive-editor/internal/document"
	"github.com/debemdeboas/archive-editor/internal/model"
)

var (
	escapeKey = KeyEvent{Key: "Escape"}
	ctrlS     = KeyEvent{Key: "s", Ctrl: true}
	ctrlZ     = KeyEvent{Key: "z", Ctrl: true}
)

func TestNoSaveWhenDraftMatchesBaseline(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p", Title: "T", Content: "body"})
	h.s.Start()

	t.Run("Reverted title", func(t *testing.T) {
		h.s.SetTitle("changed")
		h.s.SetTitle("T")
		if n := len(h.sched.active()); n != 0 {
			t.Errorf("Expected no pending timer, got %d", n)
		}
	})

	t.Run("Typed and erased", func(t *testing.T) {
		h.s.InsertText("x")
		h.s.KeyDown(KeyEvent{Key: "Backspace"})
		if got := h.s.Draft().Content; got != "body" {
			t.Fatalf("Expected body, got %q", got)
		}
		if n := len(h.sched.active()); n != 0 {
			t.Errorf("Expected no pending timer, got %d", n)
		}
	})

	t.Run("Added and removed slide", func(t *testing.T) {
		h.s.AppendSlide("s")
		h.s.DeleteSlide(0)
		if n := len(h.sched.active()); n != 0 {
			t.Errorf("Expected no pending timer, got %d", n)
		}
	})

	h.sched.fire()
	h.waitSaves()
	if n := h.store.saveCount(); n != 0 {
		t.Errorf("Expected no persistence call, got %d", n)
	}
}

func TestDebounceIssuesOneSavePerQuietWindow(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p"})
	h.s.Start()

	h.s.SetTitle("a")
	h.s.SetTitle("ab")
	h.s.SetDescription("abc")

	if n := h.sched.started(); n != 3 {
		t.Errorf("Expected the timer to restart on every change, started %d", n)
	}
	active := h.sched.active()
	if len(active) != 1 {
		t.Fatalf("Expected exactly one pending timer, got %d", len(active))
	}
	if active[0].d != time.Second {
		t.Errorf("Expected debounce of 1s, got %s", active[0].d)
	}
	if h.store.saveCount() != 0 {
		t.Fatal("Expected no save before the window elapsed")
	}

	h.sched.fire()
	h.waitSaves()

	if n := h.store.saveCount(); n != 1 {
		t.Fatalf("Expected 1 save, got %d", n)
	}
	saved := h.store.lastSave()
	if saved.Title != "ab" || saved.Description != "abc" {
		t.Errorf("Expected the latest draft, got %+v", saved)
	}
	if h.s.Status() != StatusSaved {
		t.Errorf("Expected saved status, got %s", h.s.Status())
	}

	saving := 0
	h.sink.mu.Lock()
	for _, e := range h.sink.events {
		if se, ok := e.Data.(StatusEvent); ok && se.Status == StatusSaving {
			saving++
		}
	}
	h.sink.mu.Unlock()
	if saving != 1 {
		t.Errorf("Expected one saving status event, got %d", saving)
	}

	t.Run("Saved draft becomes the baseline", func(t *testing.T) {
		h.sched.fire()
		h.waitSaves()
		h.s.SetTitle("ab")
		if len(h.sched.active()) != 0 {
			t.Error("Expected no timer for a draft equal to the saved one")
		}
		if n := h.store.saveCount(); n != 1 {
			t.Errorf("Expected still 1 save, got %d", n)
		}
	})
}

func TestSaveShortcut(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p", Title: "T"})

	if h.s.KeyDown(ctrlS) {
		t.Error("Shortcut must not be handled before Start")
	}

	h.s.Start()

	t.Run("Saves even when unchanged", func(t *testing.T) {
		if !h.s.KeyDown(ctrlS) {
			t.Error("Expected default to be prevented")
		}
		h.waitSaves()
		if n := h.store.saveCount(); n != 1 {
			t.Errorf("Expected 1 save, got %d", n)
		}
	})

	t.Run("Bypasses the pending debounce", func(t *testing.T) {
		h.s.SetTitle("changed")
		if len(h.sched.active()) != 1 {
			t.Fatal("Expected a pending timer")
		}
		if !h.s.KeyDown(KeyEvent{Key: "S", Meta: true}) {
			t.Error("Expected meta+s to be handled")
		}
		if len(h.sched.active()) != 0 {
			t.Error("Expected the pending timer to be stopped")
		}
		h.waitSaves()
		if got := h.store.lastSave().Title; got != "changed" {
			t.Errorf("Expected changed, got %q", got)
		}
	})

	t.Run("Plain s is typed", func(t *testing.T) {
		if h.s.KeyDown(KeyEvent{Key: "s"}) {
			t.Error("Plain s must not be prevented")
		}
		if got := h.text(); got != "s" {
			t.Errorf("Expected s typed into the document, got %q", got)
		}
	})

	t.Run("Released on close", func(t *testing.T) {
		h.s.Close()
		h.s.mu.Lock()
		n := h.s.keys.len()
		h.s.mu.Unlock()
		if n != 0 {
			t.Errorf("Expected no key listeners after close, got %d", n)
		}
		if h.s.KeyDown(ctrlS) {
			t.Error("Closed session must not handle keys")
		}
	})
}

func TestSaveFailure(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p"})
	h.s.opt.SaveRetries = 2
	h.s.Start()

	h.store.setFail(errDiskFull)
	h.s.SetTitle("x")
	h.sched.fire()
	h.waitSaves()

	if n := h.store.saveCount(); n != 3 {
		t.Errorf("Expected 1 attempt and 2 retries, got %d", n)
	}
	if h.s.Status() != StatusFailed {
		t.Errorf("Expected %s, got %s", StatusFailed, h.s.Status())
	}
	if msg := h.waitNotification(t); !strings.Contains(msg, "disk full") {
		t.Errorf("Expected failure notification, got %q", msg)
	}
	if v := h.s.View(); !strings.Contains(v.Error, "disk full") {
		t.Errorf("Expected error in view, got %q", v.Error)
	}

	h.store.setFail(nil)
	if err := h.s.Save(); err != nil {
		t.Fatal(err)
	}
	h.waitSaves()
	if h.s.Status() != StatusSaved {
		t.Errorf("Expected recovery to saved, got %s", h.s.Status())
	}
}

func TestTriggerRemovesMarker(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p", Title: "Title", Description: "Desc"})
	h.s.Start()

	h.s.InsertText("Once upon ")
	h.s.InsertText("+")
	if h.s.CompletionState() != Idle {
		t.Fatal("A single marker rune must not trigger")
	}
	h.s.InsertText("+")

	if got := h.text(); got != "Once upon " {
		t.Errorf("Expected marker removed, got %q", got)
	}
	if got := h.waitPrompt(t); got != "Title\n\nDesc\n\nOnce upon " {
		t.Errorf("Unexpected prompt %q", got)
	}
	if h.s.CompletionState() != Requesting {
		t.Errorf("Expected requesting, got %s", h.s.CompletionState())
	}

	t.Run("Trigger while active is a no-op", func(t *testing.T) {
		h.s.InsertText("++")
		if got := h.text(); got != "Once upon ++" {
			t.Errorf("Expected marker kept, got %q", got)
		}
		if h.s.CompletionState() != Idle {
			t.Errorf("Expected the edit to cancel the completion, got %s", h.s.CompletionState())
		}
		select {
		case p := <-h.completer.prompts:
			t.Errorf("Unexpected second request %q", p)
		case <-time.After(20 * time.Millisecond):
		}
	})
}

func TestTriggerFromKeys(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p"})
	h.s.Start()

	for _, k := range []string{"H", "i", "Enter", "+", "+"} {
		h.s.KeyDown(KeyEvent{Key: k})
	}
	if got := h.waitPrompt(t); got != "\n\n\n\nHi\n" {
		t.Errorf("Unexpected prompt %q", got)
	}
	if got := h.text(); got != "Hi\n" {
		t.Errorf("Expected marker removed, got %q", got)
	}
}

func TestStreamingInsertsOnlyNewSuffix(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p"})
	h.s.Start()
	h.s.InsertText("Start ++")
	h.waitPrompt(t)
	gen := h.gen()

	for _, chunk := range []string{"Hel", "Hello", "Hello", "Hello, wörld"} {
		if !h.s.onResponse(gen, chunk) {
			t.Fatalf("Chunk %q rejected", chunk)
		}
	}

	if got := h.text(); got != "Start Hello, wörld" {
		t.Errorf("Expected each chunk inserted once, got %q", got)
	}
	if h.s.CompletionState() != Streaming {
		t.Errorf("Expected streaming, got %s", h.s.CompletionState())
	}
	if got := h.s.Draft().Content; got != "" {
		t.Errorf("Draft must not follow the document while streaming, got %q", got)
	}

	t.Run("Stale generation is dropped", func(t *testing.T) {
		if h.s.onResponse(gen-1, "Hello, wörld and more") {
			t.Error("Expected stale callback to be rejected")
		}
	})

	t.Run("Finish selects the response", func(t *testing.T) {
		h.s.onCompletionFinish(gen)

		v := h.s.View()
		if v.Selection != (document.Range{Start: 6, End: 18}) {
			t.Errorf("Expected selection [6,18), got %+v", v.Selection)
		}
		if v.Completion != "idle" {
			t.Errorf("Expected idle, got %s", v.Completion)
		}
		if v.Draft.Content != "Start Hello, wörld" {
			t.Errorf("Expected draft synced, got %q", v.Draft.Content)
		}

		h.s.mu.Lock()
		keys, pointers := h.s.keys.len(), h.s.pointers.len()
		h.s.mu.Unlock()
		if keys != 1 || pointers != 0 {
			t.Errorf("Expected only the save shortcut to remain, got %d keys %d pointers", keys, pointers)
		}
	})
}

func TestSlides(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p", Slides: []string{"A", "B", "C"}})
	h.s.Start()

	steps := []struct {
		name string
		op   func() bool
		want []string
		ok   bool
	}{
		{"delete 1", func() bool { return h.s.DeleteSlide(1) }, []string{"A", "C"}, true},
		{"update 0", func() bool { return h.s.UpdateSlide(0, "Z") }, []string{"Z", "C"}, true},
		{"append", func() bool { h.s.AppendSlide("D"); return true }, []string{"Z", "C", "D"}, true},
		{"update out of range", func() bool { return h.s.UpdateSlide(3, "x") }, []string{"Z", "C", "D"}, false},
		{"delete negative", func() bool { return h.s.DeleteSlide(-1) }, []string{"Z", "C", "D"}, false},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if ok := step.op(); ok != step.ok {
				t.Errorf("Expected %v, got %v", step.ok, ok)
			}
			if got := h.s.Draft().Slides; !slices.Equal(got, step.want) {
				t.Errorf("Expected %v, got %v", step.want, got)
			}
		})
	}

	t.Run("Draft copies do not alias", func(t *testing.T) {
		d := h.s.Draft()
		d.Slides[0] = "mutated"
		if h.s.Draft().Slides[0] != "Z" {
			t.Error("Session slides changed through a copy")
		}
	})

	h.sched.fire()
	h.waitSaves()
	if got := h.store.lastSave().Slides; !slices.Equal(got, []string{"Z", "C", "D"}) {
		t.Errorf("Expected slides persisted, got %v", got)
	}
}

func TestEscapeRestoresMarker(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p"})
	h.s.Start()
	h.s.InsertText("Intro ++")
	h.waitPrompt(t)
	gen := h.gen()

	h.s.onResponse(gen, "0123456789")
	if got := h.text(); got != "Intro 0123456789" {
		t.Fatalf("Unexpected document %q", got)
	}

	if !h.s.KeyDown(escapeKey) {
		t.Error("Expected escape to prevent default")
	}
	if got := h.text(); got != "Intro ++" {
		t.Errorf("Expected the 10 runes replaced by the marker, got %q", got)
	}
	if h.s.CompletionState() != Idle {
		t.Errorf("Expected idle, got %s", h.s.CompletionState())
	}
	if h.s.onResponse(gen, "0123456789abc") {
		t.Error("Expected insertion to halt after escape")
	}
	if got := h.text(); got != "Intro ++" {
		t.Errorf("Document changed after escape: %q", got)
	}
	if got := h.s.Draft().Content; got != "Intro ++" {
		t.Errorf("Expected draft synced, got %q", got)
	}
}

func TestUndoCancelsStream(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p"})
	h.s.Start()
	h.s.InsertText("Go ++")
	h.waitPrompt(t)
	gen := h.gen()
	h.s.onResponse(gen, " there")

	if h.s.KeyDown(ctrlZ) {
		t.Error("Undo must not be prevented")
	}
	if h.s.CompletionState() != Idle {
		t.Errorf("Expected idle, got %s", h.s.CompletionState())
	}
	if got := h.text(); got != "Go " {
		t.Errorf("Expected default undo to drop the insertion, got %q", got)
	}
	if h.s.onResponse(gen, " there again") {
		t.Error("Expected stream to be stopped")
	}
	if got := h.s.Draft().Content; got != "Go " {
		t.Errorf("Expected draft synced after undo, got %q", got)
	}
}

func TestPointerDownAsksToContinue(t *testing.T) {
	start := func(t *testing.T) (*harness, uint64) {
		h := newHarness(t, model.Draft{ID: "p"})
		h.s.Start()
		h.s.InsertText("Go ++")
		h.waitPrompt(t)
		gen := h.gen()
		h.s.onResponse(gen, " on")

		h.s.PointerDown(-1)
		if h.s.CompletionState() != Confirming {
			t.Fatalf("Expected confirming, got %s", h.s.CompletionState())
		}
		select {
		case msg := <-h.confirmer.asked:
			if msg != ContinuePrompt {
				t.Errorf("Unexpected prompt %q", msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Expected a confirmation prompt")
		}
		return h, gen
	}

	t.Run("Accept restarts with a fresh prompt", func(t *testing.T) {
		h, gen := start(t)

		h.s.PointerDown(-1)
		if h.s.CompletionState() != Confirming {
			t.Errorf("Second pointer-down must be ignored, got %s", h.s.CompletionState())
		}
		if h.s.onResponse(gen, " on and on") {
			t.Error("Paused stream must not insert")
		}

		h.confirmer.answers <- true
		prompt := h.waitPrompt(t)
		if !strings.HasSuffix(prompt, "Go  on") {
			t.Errorf("Expected prompt built from the current document, got %q", prompt)
		}
		if n := h.confirmer.callCount(); n != 1 {
			t.Errorf("Expected a single prompt, got %d", n)
		}
		if h.s.CompletionState() != Requesting {
			t.Errorf("Expected requesting, got %s", h.s.CompletionState())
		}
		if h.gen() == gen {
			t.Error("Expected a new completion generation")
		}
	})

	t.Run("Reject returns to idle", func(t *testing.T) {
		h, _ := start(t)
		h.confirmer.answers <- false

		eventually(t, "idle state", func() bool { return h.s.CompletionState() == Idle })
		if got := h.s.Draft().Content; got != "Go  on" {
			t.Errorf("Expected draft synced, got %q", got)
		}
		select {
		case p := <-h.completer.prompts:
			t.Errorf("Unexpected request %q", p)
		default:
		}
	})

	t.Run("Pointer-down moves the cursor", func(t *testing.T) {
		h := newHarness(t, model.Draft{ID: "p", Content: "abc"})
		h.s.Start()
		h.s.PointerDown(1)
		if v := h.s.View(); v.Selection != (document.Range{Start: 1, End: 1}) {
			t.Errorf("Expected cursor at 1, got %+v", v.Selection)
		}
	})
}

func TestCompletionErrors(t *testing.T) {
	t.Run("Request limit is tracked", func(t *testing.T) {
		h := newHarness(t, model.Draft{ID: "p"})
		h.completer.err = fmt.Errorf("%w: status 429", completion.ErrRequestLimit)
		h.s.Start()
		h.s.InsertText("++")
		h.waitPrompt(t)

		if msg := h.waitNotification(t); msg != completion.RequestLimitMessage {
			t.Errorf("Unexpected notification %q", msg)
		}
		if n := h.tracker.Count(analytics.EventRateLimitReached); n != 1 {
			t.Errorf("Expected 1 tracked event, got %d", n)
		}
		if h.s.CompletionState() != Idle {
			t.Errorf("Expected idle, got %s", h.s.CompletionState())
		}
	})

	t.Run("Other errors are only notified", func(t *testing.T) {
		h := newHarness(t, model.Draft{ID: "p"})
		h.completer.err = errors.New("upstream unavailable")
		h.s.Start()
		h.s.InsertText("++")
		h.waitPrompt(t)

		if msg := h.waitNotification(t); msg != "upstream unavailable" {
			t.Errorf("Unexpected notification %q", msg)
		}
		if n := h.tracker.Count(analytics.EventRateLimitReached); n != 0 {
			t.Errorf("Expected no tracked event, got %d", n)
		}
	})
}

func TestHydration(t *testing.T) {
	t.Run("Persisted content fills an empty document once", func(t *testing.T) {
		h := newHarness(t, model.Draft{ID: "p", Content: "Hello"})
		h.s.Start()
		if got := h.text(); got != "Hello" {
			t.Fatalf("Expected Hello, got %q", got)
		}

		h.s.Start()
		if got := h.text(); got != "Hello" {
			t.Errorf("Expected a single hydration, got %q", got)
		}

		h.s.ObservePersisted(model.Draft{ID: "p", Content: "Changed elsewhere"})
		if got := h.text(); got != "Hello" {
			t.Errorf("External change altered the document: %q", got)
		}
		if got := h.s.Draft().Content; got != "Hello" {
			t.Errorf("External change altered the draft: %q", got)
		}
		if h.store.saveCount() != 0 || len(h.sched.active()) != 0 {
			t.Error("Hydration must not schedule a save")
		}
	})

	t.Run("Non-empty document is kept", func(t *testing.T) {
		h := newHarness(t, model.Draft{ID: "p", Content: "Hello"})
		h.doc.SetContent("Local")
		h.s.Start()
		if got := h.text(); got != "Local" {
			t.Errorf("Expected Local, got %q", got)
		}
	})

	t.Run("Empty persisted content", func(t *testing.T) {
		h := newHarness(t, model.Draft{ID: "p"})
		h.s.Start()
		if h.doc.Len() != 0 {
			t.Errorf("Expected empty document, got %q", h.text())
		}
	})
}

func TestPublish(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p"})
	h.s.Start()
	ctx := context.Background()

	if err := h.s.Publish(ctx); err != nil {
		t.Fatal(err)
	}
	if !h.s.Draft().Published {
		t.Error("Expected published draft")
	}
	if len(h.sched.active()) != 0 || h.store.saveCount() != 0 {
		t.Error("Publishing must not go through autosave")
	}

	if err := h.s.Unpublish(ctx); err != nil {
		t.Fatal(err)
	}
	if h.s.Draft().Published {
		t.Error("Expected unpublished draft")
	}
	if got := h.store.fields; !slices.Equal(got, []string{"published", "published"}) {
		t.Errorf("Unexpected field updates %v", got)
	}

	h.store.setFail(errDiskFull)
	if err := h.s.Publish(ctx); !errors.Is(err, errDiskFull) {
		t.Errorf("Expected disk full, got %v", err)
	}
	if h.s.Draft().Published {
		t.Error("Failed publish must not change the draft")
	}
	h.waitNotification(t)
}

func TestCloseFlushesPendingChanges(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T, h *harness)
		wantSaves   int
		wantTitle   string
		wantContent string
	}{
		{
			name:      "Pending debounce",
			setup:     func(t *testing.T, h *harness) { h.s.SetTitle("unsaved") },
			wantSaves: 1,
			wantTitle: "unsaved",
		},
		{
			name:      "Clean draft",
			setup:     func(t *testing.T, h *harness) {},
			wantSaves: 0,
		},
		{
			name: "After a failed save",
			setup: func(t *testing.T, h *harness) {
				h.store.setFail(errDiskFull)
				h.s.SetTitle("x")
				h.sched.fire()
				h.waitSaves()
				h.waitNotification(t)
				if h.s.Status() != StatusFailed {
					t.Fatalf("Expected %s, got %s", StatusFailed, h.s.Status())
				}
				h.store.setFail(nil)
			},
			wantSaves: 2,
			wantTitle: "x",
		},
		{
			name: "Text generated mid-stream",
			setup: func(t *testing.T, h *harness) {
				h.s.InsertText("Go ++")
				h.waitPrompt(t)
				h.s.onResponse(h.gen(), " there")
			},
			wantSaves:   1,
			wantContent: "Go  there",
		},
		{
			name: "Edits while confirming",
			setup: func(t *testing.T, h *harness) {
				h.s.InsertText("Go ++")
				h.waitPrompt(t)
				h.s.onResponse(h.gen(), " there")
				h.s.PointerDown(-1)
				<-h.confirmer.asked

				h.s.InsertText(" typed")
				if got := h.s.Draft().Content; got != "Go  there typed" {
					t.Errorf("Expected the edit in the draft, got %q", got)
				}
				if len(h.sched.active()) != 1 {
					t.Error("Expected the edit to schedule a save")
				}
				if h.s.CompletionState() != Confirming {
					t.Errorf("Expected confirming, got %s", h.s.CompletionState())
				}
			},
			wantSaves:   1,
			wantContent: "Go  there typed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, model.Draft{ID: "p"})
			h.s.Start()
			tt.setup(t, h)
			h.s.Close()

			if n := h.store.saveCount(); n != tt.wantSaves {
				t.Fatalf("Expected %d saves, got %d", tt.wantSaves, n)
			}
			if tt.wantSaves > 0 {
				saved := h.store.lastSave()
				if saved.Title != tt.wantTitle || saved.Content != tt.wantContent {
					t.Errorf("Expected title %q content %q, got %+v", tt.wantTitle, tt.wantContent, saved)
				}
			}
			if err := h.s.Save(); !errors.Is(err, ErrClosed) {
				t.Errorf("Expected ErrClosed, got %v", err)
			}
		})
	}
}

func TestSaveRacingEdits(t *testing.T) {
	t.Run("Draft reverted while saving is saved again", func(t *testing.T) {
		h := newHarness(t, model.Draft{ID: "p", Title: "A"})
		h.s.Start()

		release := h.store.holdSaves()
		h.s.SetTitle("B")
		if err := h.s.Save(); err != nil {
			t.Fatal(err)
		}
		h.s.SetTitle("A")
		release()
		h.waitSaves()

		if n := len(h.sched.active()); n != 1 {
			t.Fatalf("Expected a save to be scheduled for the reverted draft, got %d timers", n)
		}
		h.sched.fire()
		h.waitSaves()

		if n := h.store.saveCount(); n != 2 {
			t.Fatalf("Expected 2 saves, got %d", n)
		}
		if got := h.store.lastSave().Title; got != "A" {
			t.Errorf("Expected A persisted, got %q", got)
		}
		if h.s.Status() != StatusSaved {
			t.Errorf("Expected saved, got %s", h.s.Status())
		}
		if n := len(h.sched.active()); n != 0 {
			t.Errorf("Expected nothing left to save, got %d timers", n)
		}
	})

	lateSaves := []struct {
		name string
		err  error
	}{
		{"Older save succeeds late", nil},
		{"Older save fails late", errDiskFull},
	}
	for _, tt := range lateSaves {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, model.Draft{ID: "p", Title: "A"})
			h.s.Start()
			h.s.SetTitle("C")

			h.s.mu.Lock()
			h.s.stopTimerLocked()
			h.s.inflight = 2
			h.s.onSaved(2, model.Draft{ID: "p", Title: "C"}, 1, nil)
			h.s.onSaved(1, model.Draft{ID: "p", Title: "B"}, 1, tt.err)
			baseline, timer, status := h.s.baseline, h.s.timer, h.s.status
			h.s.mu.Unlock()

			if baseline.Title != "C" {
				t.Errorf("Expected the newer save to stay the baseline, got %q", baseline.Title)
			}
			if timer != nil {
				t.Error("Expected no save scheduled for a saved draft")
			}
			if status != StatusSaved {
				t.Errorf("Expected saved, got %s", status)
			}
		})
	}
}

func TestEditsStopTheStream(t *testing.T) {
	tests := []struct {
		name string
		edit func(h *harness)
		want string
	}{
		{"Inserted text", func(h *harness) { h.s.InsertText("!") }, "Go  there!"},
		{"Typed key", func(h *harness) { h.s.KeyDown(KeyEvent{Key: "x"}) }, "Go  therex"},
		{"Backspace", func(h *harness) { h.s.KeyDown(KeyEvent{Key: "Backspace"}) }, "Go  ther"},
		{"Selection moved", func(h *harness) { h.s.SetSelection(0, 0) }, "Go  there"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, model.Draft{ID: "p"})
			h.s.Start()
			h.s.InsertText("Go ++")
			h.waitPrompt(t)
			gen := h.gen()
			h.s.onResponse(gen, " there")

			tt.edit(h)

			if h.s.CompletionState() != Idle {
				t.Errorf("Expected idle, got %s", h.s.CompletionState())
			}
			if h.s.onResponse(gen, " there and more") {
				t.Error("Expected the stream to be stopped")
			}
			if got := h.text(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if got := h.s.Draft().Content; got != tt.want {
				t.Errorf("Expected draft %q, got %q", tt.want, got)
			}

			h.s.KeyDown(escapeKey)
			if got := h.text(); got != tt.want {
				t.Errorf("Escape after the edit changed the document to %q", got)
			}
			if keys, pointers := h.listeners(); keys != 1 || pointers != 0 {
				t.Errorf("Expected only the save shortcut to remain, got %d keys %d pointers", keys, pointers)
			}
		})
	}
}

func TestUndoRedo(t *testing.T) {
	h := newHarness(t, model.Draft{ID: "p"})
	h.s.Start()
	h.s.InsertText("a")
	h.s.InsertText("b")

	steps := []struct {
		name    string
		key     KeyEvent
		want    string
		canUndo bool
		canRedo bool
	}{
		{"Undo", ctrlZ, "a", true, true},
		{"Redo with shift", KeyEvent{Key: "Z", Ctrl: true, Shift: true}, "ab", true, false},
		{"Undo again", KeyEvent{Key: "z", Meta: true}, "a", true, true},
		{"Redo with y", KeyEvent{Key: "y", Ctrl: true}, "ab", true, false},
		{"Nothing to redo", KeyEvent{Key: "y", Ctrl: true}, "ab", true, false},
	}
	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if h.s.KeyDown(step.key) {
				t.Error("History keys must not be prevented")
			}
			v := h.s.View()
			if v.Document != step.want || v.Draft.Content != step.want {
				t.Errorf("Expected %q, got document %q draft %q", step.want, v.Document, v.Draft.Content)
			}
			if v.CanUndo != step.canUndo || v.CanRedo != step.canRedo {
				t.Errorf("Expected undo %v redo %v, got %v %v", step.canUndo, step.canRedo, v.CanUndo, v.CanRedo)
			}
		})
	}
}

func TestStreamFromCompleter(t *testing.T) {
	tests := []struct {
		name       string
		completer  *scriptedCompleter
		wantDoc    string
		wantSel    document.Range
		wantStates []string
		wantNotice string
	}{
		{
			name:       "Chunks accumulate and the response is selected",
			completer:  &scriptedCompleter{chunks: []string{"Hel", "lo, ", "", "wörld"}},
			wantDoc:    "Start Hello, wörld",
			wantSel:    document.Range{Start: 6, End: 18},
			wantStates: []string{"requesting", "streaming", "finished", "idle"},
		},
		{
			name:       "Error keeps what was streamed",
			completer:  &scriptedCompleter{chunks: []string{"Hel", "lo"}, err: errors.New("connection reset")},
			wantDoc:    "Start Hello",
			wantSel:    document.Range{Start: 11, End: 11},
			wantStates: []string{"requesting", "streaming", "errored", "idle"},
			wantNotice: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, model.Draft{ID: "p"})
			h.s.completer = tt.completer
			h.s.Start()
			h.s.InsertText("Start ++")

			eventually(t, "the completion to end", func() bool { return h.s.CompletionState() == Idle })

			v := h.s.View()
			if v.Document != tt.wantDoc {
				t.Errorf("Expected document %q, got %q", tt.wantDoc, v.Document)
			}
			if v.Selection != tt.wantSel {
				t.Errorf("Expected selection %+v, got %+v", tt.wantSel, v.Selection)
			}
			if v.Draft.Content != tt.wantDoc {
				t.Errorf("Expected draft synced, got %q", v.Draft.Content)
			}
			if keys, pointers := h.listeners(); keys != 1 || pointers != 0 {
				t.Errorf("Expected only the save shortcut to remain, got %d keys %d pointers", keys, pointers)
			}
			if tt.wantNotice != "" {
				if msg := h.waitNotification(t); msg != tt.wantNotice {
					t.Errorf("Expected notification %q, got %q", tt.wantNotice, msg)
				}
			}

			var states []string
			h.sink.mu.Lock()
			for _, e := range h.sink.events {
				if ce, ok := e.Data.(CompletionEvent); ok {
					states = append(states, ce.State)
				}
			}
			h.sink.mu.Unlock()
			if !slices.Equal(states, tt.wantStates) {
				t.Errorf("Expected states %v, got %v", tt.wantStates, states)
			}

			h.sched.fire()
			h.waitSaves()
			if got := h.store.lastSave().Content; got != tt.wantDoc {
				t.Errorf("Expected %q persisted, got %q", tt.wantDoc, got)
			}
		})
	}
}

func TestCompletionStateString(t *testing.T) {
	tests := map[CompletionState]string{
		Idle:                "idle",
		Streaming:           "streaming",
		Confirming:          "confirming",
		CompletionState(42): "unknown",
		CompletionState(-1): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d: expected %q, got %q", int(state), want, got)
		}
	}
}
