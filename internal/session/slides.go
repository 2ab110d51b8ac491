package session

// AppendSlide adds a slide at the end.
func (s *Session) AppendSlide(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	slides := make([]string, 0, len(s.draft.Slides)+1)
	slides = append(slides, s.draft.Slides...)
	s.draft.Slides = append(slides, value)
	s.changedLocked()
}

// UpdateSlide replaces slide i. An index out of range is ignored and
// reported as false.
func (s *Session) UpdateSlide(i int, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || i < 0 || i >= len(s.draft.Slides) {
		return false
	}

	slides := make([]string, len(s.draft.Slides))
	copy(slides, s.draft.Slides)
	slides[i] = value
	s.draft.Slides = slides
	s.changedLocked()
	return true
}

// DeleteSlide removes slide i. An index out of range is ignored and
// reported as false.
func (s *Session) DeleteSlide(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || i < 0 || i >= len(s.draft.Slides) {
		return false
	}

	slides := make([]string, 0, len(s.draft.Slides)-1)
	slides = append(slides, s.draft.Slides[:i]...)
	s.draft.Slides = append(slides, s.draft.Slides[i+1:]...)
	s.changedLocked()
	return true
}
