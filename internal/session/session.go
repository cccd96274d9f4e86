// Package session consumes synthesis events and owns everything shared
// between generation and playback: the buffer queue, the decoder, the
// merged artifact and the playback scheduler.
//
// A single dispatcher goroutine (Run) applies events in arrival order, so
// the queue has exactly one writer. Requests are tagged with a correlation
// id; events carrying any other id are discarded.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/export"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/metrics"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

// Status is the generation status, tracked alongside the transport state.
type Status string

const (
	StatusInit       Status = "init"
	StatusReady      Status = "ready"
	StatusLoading    Status = "loading"
	StatusChunking   Status = "chunking"
	StatusGenerating Status = "generating"
	StatusError      Status = "error"
)

// Busy reports whether a request is in flight.
func (s Status) Busy() bool {
	return s == StatusLoading || s == StatusChunking || s == StatusGenerating
}

// Progress counts chunks of the active request. Total is 0 when unknown.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Mode labels a request for history and metrics.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeStory  Mode = "story"
)

// Request describes one generate call.
type Request struct {
	Text  string
	Voice string
	// Append extends the queue instead of replacing it.
	Append bool
	// More keeps generation open after this request completes, for callers
	// that will append further requests.
	More bool
	Mode Mode
}

// Result is delivered once per request.
type Result struct {
	ID         string
	Mode       Mode
	Voice      string
	Text       string
	Chunks     int
	Duration   time.Duration
	Artifact   *export.Artifact
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Snapshot is a consistent view of the session for display.
type Snapshot struct {
	Status     Status
	Progress   Progress
	Error      string
	Device     string
	Voices     []synth.Voice
	Sentence   string
	Playback   playback.Status
	Artifact   *export.Artifact
	// Format is the sample layout of the queue once a chunk has decoded.
	Format     *audio.Format
	StartedAt  time.Time
	FinishedAt time.Time
}

// Elapsed is the generation time so far, or of the last finished request.
func (s Snapshot) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// pending is the request whose events are currently accepted.
type pending struct {
	id      string
	req     Request
	chunks  int
	started time.Time
	done    chan Result
}

// Session is the core of the player.
type Session struct {
	mu       sync.Mutex
	channel  synth.Channel
	queue    *audio.Queue
	decoder  *audio.Decoder
	registry *export.Registry
	player   *playback.Scheduler

	status     Status
	progress   Progress
	errMsg     string
	device     string
	voices     []synth.Voice
	sentence   string
	startedAt  time.Time
	finishedAt time.Time
	active     *pending
	running    bool
	autoPlay   bool
	ready      chan struct{}
	readyOnce  sync.Once

	onFinish func(Result)
	logger   *log.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithDevice sets the device named in the initialize request.
func WithDevice(device string) Option {
	return func(s *Session) { s.device = device }
}

// WithAutoPlay starts playback as soon as enough audio is buffered.
func WithAutoPlay(on bool) Option {
	return func(s *Session) { s.autoPlay = on }
}

// WithFinishHook calls fn with every finished request's result. fn runs on
// the dispatcher with the session lock held and must not call back into
// the session.
func WithFinishHook(fn func(Result)) Option {
	return func(s *Session) { s.onFinish = fn }
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New wires a session to a synthesis channel and an audio output.
// schedOpts are passed to the playback scheduler.
func New(ch synth.Channel, out playback.Output, opts []Option, schedOpts ...playback.Option) *Session {
	s := &Session{
		channel: ch,
		queue:   audio.NewQueue(),
		decoder: audio.NewDecoder(),
		status:  StatusInit,
		device:  "cpu",
		ready:   make(chan struct{}),
		logger:  log.WithPrefix("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = export.NewRegistry(export.WithLogger(s.logger.WithPrefix("export")))

	states := []string{
		playback.StateStopped.String(),
		playback.StatePlaying.String(),
		playback.StatePaused.String(),
		playback.StateWaiting.String(),
	}
	metrics.SetTransportState(playback.StateStopped.String(), states)
	hook := playback.WithStateHook(func(_, to playback.State) {
		metrics.SetTransportState(to.String(), states)
	})
	schedOpts = append([]playback.Option{playback.WithLogger(s.logger.WithPrefix("playback")), hook}, schedOpts...)
	s.player = playback.NewScheduler(s.queue, out, schedOpts...)
	return s
}

// Player returns the playback scheduler for transport controls.
func (s *Session) Player() *playback.Scheduler { return s.player }

// Queue returns the buffer queue. Callers must not mutate it.
func (s *Session) Queue() *audio.Queue { return s.queue }

// Artifacts returns the merged artifact registry.
func (s *Session) Artifacts() *export.Registry { return s.registry }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Status:     s.status,
		Progress:   s.progress,
		Error:      s.errMsg,
		Device:     s.device,
		Voices:     s.voices,
		Sentence:   s.sentence,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
	s.mu.Unlock()
	snap.Playback = s.player.Status()
	if a, err := s.registry.Current(); err == nil {
		snap.Artifact = a
	}
	if f, ok := s.decoder.SessionFormat(); ok {
		snap.Format = &f
	}
	return snap
}

// Voices returns the catalog reported by the worker.
func (s *Session) Voices() []synth.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voices
}

// Ready is closed once the worker has reported ready.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// WaitReady blocks until the worker is ready or ctx ends.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetDevice asks the worker to reinitialise on device.
func (s *Session) SetDevice(ctx context.Context, device string) error {
	s.mu.Lock()
	if device == s.device {
		s.mu.Unlock()
		return nil
	}
	s.device = device
	s.status = StatusInit
	s.mu.Unlock()
	s.logger.Info("switching device", "device", device)
	return s.channel.Send(ctx, synth.Reinit(device))
}

// Generate submits a single request and waits for its result.
func (s *Session) Generate(ctx context.Context, text, voice string) (Result, error) {
	done, err := s.Submit(ctx, Request{Text: text, Voice: voice, Mode: ModeSingle})
	if err != nil {
		return Result{}, err
	}
	select {
	case r := <-done:
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Submit starts a request and returns a channel that receives its result.
// Any request still in flight is superseded and its later events are
// discarded.
func (s *Session) Submit(ctx context.Context, req Request) (<-chan Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, NewError(CodeInvalidInput, "cannot generate speech", ErrEmptyText)
	}
	if req.Voice == "" {
		return nil, NewError(CodeInvalidInput, "cannot generate speech", ErrNoVoice)
	}
	if req.Mode == "" {
		req.Mode = ModeSingle
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, ErrNotRunning
	}
	if prev := s.active; prev != nil {
		s.logger.Debug("superseding request", "request", prev.id)
		s.finishLocked(prev, NewError(CodeCanceled, "request replaced", ErrSuperseded))
	}

	p := &pending{
		id:      uuid.NewString(),
		req:     req,
		started: time.Now(),
		done:    make(chan Result, 1),
	}
	s.active = p
	s.errMsg = ""
	s.status = StatusLoading
	s.progress = Progress{}
	s.finishedAt = time.Time{}
	if !req.Append {
		s.sentence = ""
		s.startedAt = p.started
		s.player.Reset()
		s.queue.Reset()
		s.decoder.Reset()
		s.registry.Revoke()
		metrics.BufferedSeconds.Set(0)
		metrics.ArtifactBytes.Set(0)
	}
	if err := s.player.SetGenerating(true); err != nil {
		s.logger.Warn("could not resume playback", "err", err)
	}
	if s.autoPlay && s.player.State() == playback.StateStopped {
		// With nothing buffered this enters waiting-for-audio and resumes
		// once the first audio arrives.
		if err := s.player.PlayFromOffset(s.queue.TotalDuration()); err != nil {
			s.logger.Warn("could not start playback", "err", err)
		}
	}
	s.mu.Unlock()

	s.logger.Info("generating", "request", p.id, "voice", req.Voice, "append", req.Append, "chars", len(req.Text))
	if err := s.channel.Send(ctx, synth.Generate(req.Text, req.Voice, p.id)); err != nil {
		s.mu.Lock()
		if s.active == p {
			s.failLocked(p, &ChannelError{Message: err.Error()}, CodeChannel, MsgChannelLost)
		}
		s.mu.Unlock()
		return nil, err
	}
	return p.done, nil
}

// Close stops playback and closes the channel.
func (s *Session) Close() error {
	err := s.player.Close()
	if cerr := s.channel.Close(); err == nil {
		err = cerr
	}
	return err
}

// finishLocked delivers the result of p and clears it if active.
func (s *Session) finishLocked(p *pending, err error) {
	if s.active == p {
		s.active = nil
	}
	r := Result{
		ID:         p.id,
		Mode:       p.req.Mode,
		Voice:      p.req.Voice,
		Text:       p.req.Text,
		Chunks:     p.chunks,
		Duration:   s.queue.TotalDuration(),
		StartedAt:  p.started,
		FinishedAt: time.Now(),
		Err:        err,
	}
	if a, aerr := s.registry.Current(); aerr == nil {
		r.Artifact = a
	}

	outcome := "ok"
	if err != nil {
		outcome = string(Code(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.Requests.WithLabelValues(string(p.req.Mode), outcome).Inc()

	p.done <- r
	if s.onFinish != nil {
		s.onFinish(r)
	}
}

// failLocked records a user-visible error and ends p with it.
func (s *Session) failLocked(p *pending, cause error, code ErrorCode, msg string) {
	s.errMsg = msg
	s.status = StatusError
	metrics.Errors.WithLabelValues(string(code)).Inc()
	if err := s.player.SetGenerating(false); err != nil {
		s.logger.Warn("could not settle playback", "err", err)
	}
	s.logger.Error(msg, "request", p.id, "err", cause)
	s.finishLocked(p, NewError(code, msg, cause).WithContext("request", p.id))
}
