package session

import "strings"

// KeyEvent is a key-down from the client. Key follows the DOM naming
// ("s", "Escape", "Enter").
type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Meta  bool   `json:"meta"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
}

// Mod reports whether the platform command modifier is held.
func (k KeyEvent) Mod() bool { return k.Ctrl || k.Meta }

// IsMod reports whether k is mod+key.
func (k KeyEvent) IsMod(key string) bool {
	return k.Mod() && strings.EqualFold(k.Key, key)
}

// keyListener returns true to prevent the default action.
type keyListener func(KeyEvent) bool

type pointerListener func()

// Subscription is a registered listener. Release is idempotent.
type Subscription struct {
	id      int
	release func(id int)
	active  bool
}

func (s *Subscription) Release() {
	if s == nil || !s.active {
		return
	}
	s.active = false
	s.release(s.id)
}

func (s *Subscription) Active() bool { return s != nil && s.active }

type entry[L any] struct {
	sub *Subscription
	fn  L
}

// listenerSet keeps listeners in subscription order. It relies on the
// session mutex.
type listenerSet[L any] struct {
	next    int
	entries []entry[L]
}

func (ls *listenerSet[L]) subscribe(fn L) *Subscription {
	ls.next++
	sub := &Subscription{id: ls.next, active: true}
	sub.release = func(id int) {
		for i, e := range ls.entries {
			if e.sub.id == id {
				ls.entries = append(ls.entries[:i:i], ls.entries[i+1:]...)
				return
			}
		}
	}
	ls.entries = append(ls.entries, entry[L]{sub: sub, fn: fn})
	return sub
}

// snapshot returns the current entries. Callers must check sub.Active()
// before calling, since an earlier listener may release a later one.
func (ls *listenerSet[L]) snapshot() []entry[L] {
	out := make([]entry[L], len(ls.entries))
	copy(out, ls.entries)
	return out
}

func (ls *listenerSet[L]) len() int { return len(ls.entries) }
