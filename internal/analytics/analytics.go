// Package analytics records product events.
package analytics

import (
	"sync"

	"github.com/rs/zerolog"
)

const EventRateLimitReached = "Rate Limit Reached"

type Tracker interface {
	Track(event string, props map[string]any)
}

// LogTracker writes events to a zerolog logger.
type LogTracker struct {
	logger zerolog.Logger
}

func NewLogTracker(l zerolog.Logger) *LogTracker {
	return &LogTracker{logger: l}
}

func (t *LogTracker) Track(event string, props map[string]any) {
	t.logger.Info().Str("event", event).Fields(props).Msg("Analytics event")
}

// Counter keeps per-event totals in memory and forwards to Next when set.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
	Next   Tracker
}

func NewCounter(next Tracker) *Counter {
	return &Counter{counts: make(map[string]int), Next: next}
}

func (c *Counter) Track(event string, props map[string]any) {
	c.mu.Lock()
	c.counts[event]++
	c.mu.Unlock()

	if c.Next != nil {
		c.Next.Track(event, props)
	}
}

func (c *Counter) Count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[event]
}
