package session

import (
	"context"
	"errors"
	"time"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/export"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/metrics"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

// Run initialises the worker and applies its events until ctx ends or the
// channel closes. A closed channel is reported as a *ChannelError.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	device := s.device
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.channel.Send(ctx, synth.Initialize(device)); err != nil {
		return &ChannelError{Message: err.Error()}
	}

	events := s.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				s.channelClosed()
				return &ChannelError{Closed: true}
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev synth.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := ev.(synth.Ready); ok {
		s.onReady(r)
		return
	}

	p := s.active
	id := ev.Correlation()
	if id == "" {
		// Worker-level errors apply to whatever is in flight.
		if e, ok := ev.(synth.Error); ok {
			s.onWorkerError(e)
		}
		return
	}
	if p == nil || p.id != id {
		metrics.StaleEvents.WithLabelValues(ev.Status()).Inc()
		s.logger.Debug("discarding stale event", "status", ev.Status(), "request", id)
		return
	}

	switch e := ev.(type) {
	case synth.ChunkStart:
		s.onChunkStart(p, e)
	case synth.ChunkComplete:
		s.onChunkComplete(p, e)
	case synth.Complete:
		s.onComplete(p)
	case synth.Error:
		s.failLocked(p, &ChannelError{Message: e.Message}, CodeChannel, e.Message)
	}
}

func (s *Session) onReady(r synth.Ready) {
	s.voices = r.Voices
	if !s.status.Busy() {
		s.status = StatusReady
	}
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("worker ready", "voices", len(r.Voices), "device", s.device)
}

func (s *Session) onWorkerError(e synth.Error) {
	if p := s.active; p != nil {
		s.failLocked(p, &ChannelError{Message: e.Message}, CodeChannel, e.Message)
		return
	}
	s.errMsg = e.Message
	s.status = StatusError
	metrics.Errors.WithLabelValues(string(CodeChannel)).Inc()
	s.logger.Error("worker error", "message", e.Message)
}

func (s *Session) onChunkStart(p *pending, e synth.ChunkStart) {
	s.progress = Progress{Total: e.TotalChunks}
	s.status = StatusChunking
	s.logger.Debug("chunking", "request", p.id, "total", e.TotalChunks)
}

func (s *Session) onChunkComplete(p *pending, e synth.ChunkComplete) {
	buf, err := s.decoder.Decode(e.AudioBytes)
	if err != nil {
		s.failLocked(p, err, CodeDecode, MsgDecodeFailed)
		return
	}

	total := s.queue.Append(buf)
	p.chunks++
	s.progress.Completed++
	s.status = StatusGenerating
	s.sentence = e.SourceText
	metrics.ChunksDecoded.Inc()
	metrics.BufferedSeconds.Set(total.Seconds())
	s.logger.Debug("chunk appended",
		"request", p.id,
		"index", e.ChunkIndex,
		"duration", buf.Duration(),
		"total", total)

	if err := s.mergeLocked(); err != nil {
		s.failLocked(p, err, CodeMerge, MsgMergeFailed)
		return
	}
	if err := s.player.NotifyAppended(); err != nil {
		s.logger.Warn("could not resume playback", "err", err)
	}
}

func (s *Session) onComplete(p *pending) {
	if err := s.mergeLocked(); err != nil {
		s.failLocked(p, err, CodeMerge, MsgMergeFailed)
		return
	}
	s.status = StatusReady
	s.finishedAt = time.Now()
	if !p.req.More {
		if err := s.player.SetGenerating(false); err != nil {
			s.logger.Warn("could not settle playback", "err", err)
		}
	}
	s.logger.Info("generation complete",
		"request", p.id,
		"chunks", p.chunks,
		"audio", s.queue.TotalDuration(),
		"took", s.finishedAt.Sub(p.started).Round(time.Millisecond))
	s.finishLocked(p, nil)
}

// mergeLocked re-encodes the whole queue and publishes it. An empty queue
// is skipped.
func (s *Session) mergeLocked() error {
	m, err := export.MergeAll(s.queue)
	if errors.Is(err, export.ErrEmptyQueue) {
		return nil
	}
	if err != nil {
		return err
	}
	a := s.registry.Publish(m, s.queue.Generation())
	metrics.Merges.Inc()
	metrics.ArtifactBytes.Set(float64(a.Size()))
	return nil
}

func (s *Session) channelClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.active; p != nil {
		s.failLocked(p, &ChannelError{Closed: true}, CodeChannel, MsgChannelLost)
		return
	}
	s.errMsg = MsgChannelLost
	s.status = StatusError
	if err := s.player.SetGenerating(false); err != nil {
		s.logger.Warn("could not settle playback", "err", err)
	}
}
