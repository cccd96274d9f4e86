package playback

import "time"

// SeekStart begins a scrub. If playback is active its audio is stopped
// without firing the completion trigger; the transport state is kept.
func (s *Scheduler) SeekStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeking {
		return
	}
	pos := s.positionLocked()
	s.wasActive = s.sm.current == StatePlaying || s.sm.current == StateWaiting
	s.seeking = true
	s.offset = pos
	s.cancelLocked()
}

// SeekChange moves the logical position without scheduling audio.
func (s *Scheduler) SeekChange(offset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	s.offset = offset
	if !s.seeking && s.sm.current == StateWaiting {
		s.frozen = offset
	}
}

// SeekEnd finishes a scrub. Playback restarts at the new position only if
// it was active when the scrub began.
func (s *Scheduler) SeekEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeking {
		return nil
	}
	s.seeking = false
	if s.wasActive {
		s.wasActive = false
		return s.playLocked(s.offset)
	}
	return nil
}

// Seek is SeekStart, SeekChange and SeekEnd in one call.
func (s *Scheduler) Seek(offset time.Duration) error {
	s.SeekStart()
	s.SeekChange(offset)
	return s.SeekEnd()
}
