package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
)

// DefaultResumeThreshold is how much unplayed audio must exist before
// playback leaves StateWaiting on its own.
const DefaultResumeThreshold = time.Second

// BufferSource is the read side of the buffer queue.
type BufferSource interface {
	Snapshot() []*audio.Buffer
	TotalDuration() time.Duration
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State      State
	Position   time.Duration
	Total      time.Duration
	Generating bool
	Seeking    bool
}

// session is one PlayFromOffset call and the handles it scheduled.
type session struct {
	id      uint64
	offset  time.Duration
	start   time.Duration
	end     time.Duration // logical offset where scheduled audio runs out
	handles []Handle
}

// Scheduler drives an Output from a BufferSource. All methods are safe for
// concurrent use; output callbacks re-enter through the session id so a
// callback from a cancelled session is ignored.
type Scheduler struct {
	mu         sync.Mutex
	src        BufferSource
	out        Output
	sm         *stateMachine
	sess       *session
	nextID     uint64
	offset     time.Duration
	frozen     time.Duration
	generating bool
	seeking    bool
	wasActive  bool
	threshold  time.Duration
	logger     *log.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithResumeThreshold overrides DefaultResumeThreshold.
func WithResumeThreshold(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.threshold = d
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithStateHook registers fn to observe every state change. fn runs with
// the scheduler lock held and must not call back into the scheduler.
func WithStateHook(fn func(from, to State)) Option {
	return func(s *Scheduler) { s.sm.onChange = fn }
}

// NewScheduler creates a scheduler in StateStopped.
func NewScheduler(src BufferSource, out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		src:       src,
		out:       out,
		sm:        newStateMachine(),
		threshold: DefaultResumeThreshold,
		logger:    log.WithPrefix("playback"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the transport state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sm.current
}

// Position returns the logical playback position.
func (s *Scheduler) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:      s.sm.current,
		Position:   s.positionLocked(),
		Total:      s.src.TotalDuration(),
		Generating: s.generating,
		Seeking:    s.seeking,
	}
}

// SetVolume forwards the gain to the output.
func (s *Scheduler) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.out.SetVolume(v)
}

// PlayFromOffset cancels the current session and schedules every buffer
// from offset onwards back to back.
func (s *Scheduler) PlayFromOffset(offset time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playLocked(offset)
}

// PauseOrToggle pauses while playing and starts or resumes otherwise. It
// does nothing while waiting for audio.
func (s *Scheduler) PauseOrToggle() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.sm.current {
	case StatePlaying:
		if s.seeking {
			return nil
		}
		pos := s.positionLocked()
		s.cancelLocked()
		s.offset = pos
		s.sm.transition(StatePaused)
		s.logger.Debug("paused", "position", pos)
		return nil
	case StatePaused, StateStopped:
		return s.playLocked(s.offset)
	default:
		return nil
	}
}

// SetGenerating tells the scheduler whether more audio may still arrive.
// Ending generation while waiting either plays the remaining tail or stops.
func (s *Scheduler) SetGenerating(generating bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = generating
	if generating || s.sm.current != StateWaiting || s.seeking {
		return nil
	}
	if s.src.TotalDuration() > s.frozen {
		return s.playLocked(s.frozen)
	}
	s.stopLocked()
	return nil
}

// NotifyAppended is called after the queue grows. While waiting it resumes
// playback once enough new audio exists past the frozen position.
func (s *Scheduler) NotifyAppended() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maybeResumeLocked()
}

// Reset cancels playback and returns to StateStopped at position zero. It
// is called when the queue is cleared for a new request.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.offset = 0
	s.frozen = 0
	s.seeking = false
	s.wasActive = false
	s.sm.force(StateStopped)
}

// Close stops playback and closes the output.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
	return s.out.Close()
}

func (s *Scheduler) playLocked(offset time.Duration) error {
	s.cancelLocked()
	if offset < 0 {
		offset = 0
	}

	buffers := s.src.Snapshot()
	idx, intra, ok := audio.Locate(buffers, offset)
	if !ok {
		if s.generating {
			s.frozen = offset
			s.offset = offset
			s.sm.transition(StateWaiting)
			s.logger.Debug("offset past buffered audio, waiting", "offset", offset)
			return nil
		}
		s.stopLocked()
		return nil
	}

	s.nextID++
	sess := &session{
		id:     s.nextID,
		offset: offset,
		start:  s.out.Now(),
	}

	// Regions are chained in whole frames so the device output sees each
	// one start exactly where the previous one stopped.
	rate := buffers[idx].SampleRate()
	first := buffers[idx].FrameAt(intra)
	var chained int
	end := offset - intra
	for i := idx; i < len(buffers); i++ {
		b := buffers[i]
		var onEnded func()
		if i == len(buffers)-1 {
			id := sess.id
			onEnded = func() { s.handleEnded(id) }
		}
		at := sess.start + audio.FrameStart(chained, rate)
		h, err := s.out.Schedule(b, at, audio.FrameStart(first, rate), onEnded)
		if err != nil {
			for _, prev := range sess.handles {
				prev.Stop()
			}
			s.stopLocked()
			return fmt.Errorf("schedule buffer %d: %w", i, err)
		}
		sess.handles = append(sess.handles, h)
		chained += b.Frames() - first
		end += b.Duration()
		first = 0
	}
	sess.end = end

	s.sess = sess
	s.offset = offset
	s.sm.transition(StatePlaying)
	s.logger.Debug("scheduled",
		"session", sess.id,
		"offset", offset,
		"buffers", len(sess.handles),
		"until", end)
	return nil
}

// handleEnded runs when the last handle of session id finishes naturally.
func (s *Scheduler) handleEnded(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil || s.sess.id != id {
		return
	}
	end := s.sess.end
	s.sess = nil

	if s.generating {
		s.frozen = end
		s.offset = end
		s.sm.transition(StateWaiting)
		s.logger.Debug("ran out of audio, waiting", "position", end)
		if err := s.maybeResumeLocked(); err != nil {
			s.logger.Error("auto-resume failed", "err", err)
		}
		return
	}
	s.stopLocked()
	s.logger.Debug("playback finished")
}

func (s *Scheduler) maybeResumeLocked() error {
	if s.sm.current != StateWaiting || s.seeking {
		return nil
	}
	if s.src.TotalDuration()-s.frozen < s.threshold {
		return nil
	}
	s.logger.Debug("enough audio buffered, resuming", "position", s.frozen)
	return s.playLocked(s.frozen)
}

// cancelLocked stops every scheduled handle without letting the completion
// trigger fire.
func (s *Scheduler) cancelLocked() {
	if s.sess == nil {
		return
	}
	for _, h := range s.sess.handles {
		h.Stop()
	}
	s.sess = nil
}

func (s *Scheduler) stopLocked() {
	s.offset = 0
	s.frozen = 0
	s.sm.transition(StateStopped)
}

func (s *Scheduler) positionLocked() time.Duration {
	if s.seeking {
		return s.offset
	}
	switch s.sm.current {
	case StatePlaying:
		if s.sess == nil {
			return s.offset
		}
		pos := s.sess.offset + (s.out.Now() - s.sess.start)
		if pos > s.sess.end {
			pos = s.sess.end
		}
		return pos
	case StateWaiting:
		return s.frozen
	default:
		return s.offset
	}
}
