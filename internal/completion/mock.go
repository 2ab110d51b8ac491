package completion

import (
	"context"
	"strings"
	"time"
)

const mockContinuation = "and the rest of the paragraph writes itself, one calm sentence after another."

// Mock streams a canned continuation word by word. It does not call any
// external service.
type Mock struct {
	// Text overrides the canned continuation.
	Text string
	// Delay is waited before every word.
	Delay time.Duration
	// Err, when set, is returned by Stream.
	Err error
}

func (m *Mock) Stream(ctx context.Context, prompt string) (Stream, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	text := m.Text
	if text == "" {
		text = mockContinuation
	}

	words := strings.SplitAfter(text, " ")
	if !strings.HasSuffix(prompt, " ") && !strings.HasSuffix(prompt, "\n") && prompt != "" {
		words[0] = " " + words[0]
	}
	return &mockStream{ctx: ctx, words: words, delay: m.Delay}, nil
}

type mockStream struct {
	ctx   context.Context
	words []string
	delay time.Duration
	delta string
	err   error
}

func (s *mockStream) Next() bool {
	if s.err != nil || len(s.words) == 0 {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		case <-timer.C:
		}
	}

	s.delta, s.words = s.words[0], s.words[1:]
	return true
}

func (s *mockStream) Delta() string { return s.delta }

func (s *mockStream) Err() error { return s.err }

func (s *mockStream) Close() error {
	s.words = nil
	return nil
}
