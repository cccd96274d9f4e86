package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/cache"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/config"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/history"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/session"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

// closers releases resources in reverse order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openCache builds the memory and disk tiers from cfg.
func openCache(cfg config.Config) (*cache.Tiered, error) {
	mem := cache.NewMemory(int64(cfg.Cache.MemoryMB) << 20)
	var disk *cache.Disk
	if cfg.Cache.DiskMB > 0 && cfg.Cache.Dir != "" {
		d, err := cache.NewDisk(cfg.Cache.Dir, int64(cfg.Cache.DiskMB)<<20, cfg.Cache.ZstdLevel)
		if err != nil {
			return nil, fmt.Errorf("open chunk cache: %w", err)
		}
		disk = d
	}
	return cache.NewTiered(mem, disk), nil
}

// newSynthesizer returns the in-process engine named by cfg.
func newSynthesizer(cfg config.Config) (synth.Synthesizer, error) {
	switch cfg.Engine {
	case config.EngineTone:
		return synth.NewToneSynthesizer(cfg.SampleRate, cfg.Tone.WordDuration), nil
	case config.EnginePiper:
		p := synth.NewPiperSynthesizer(cfg.Piper.Binary, cfg.Piper.Model, cfg.SampleRate, nil)
		p.Timeout = cfg.Piper.Timeout
		return p, nil
	default:
		return nil, fmt.Errorf("engine %q does not run in process", cfg.Engine)
	}
}

// newWorker builds an in-process worker. c may be nil.
func newWorker(cfg config.Config, c cache.Cache) (*synth.Worker, error) {
	s, err := newSynthesizer(cfg)
	if err != nil {
		return nil, err
	}
	opts := []synth.WorkerOption{
		synth.WithMaxChunkRunes(cfg.MaxChunkRunes),
		synth.WithChunkInterval(cfg.ChunkInterval),
		synth.WithWorkerLogger(log.WithPrefix("worker")),
	}
	if c != nil {
		opts = append(opts, synth.WithCache(c))
	}
	return synth.NewWorker(s, opts...), nil
}

// workerCache opens the chunk cache when enabled, registering its closer.
func workerCache(cfg config.Config, useCache bool, cl *closers) (cache.Cache, error) {
	if !useCache || !cfg.Cache.Enabled {
		return nil, nil
	}
	c, err := openCache(cfg)
	if err != nil {
		return nil, err
	}
	cl.add(c.Close)
	return c, nil
}

// openChannel connects to the engine: a local worker for tone and piper,
// or a remote one over WebSocket or NATS.
func openChannel(ctx context.Context, cfg config.Config, useCache bool, cl *closers) (synth.Channel, error) {
	switch cfg.Engine {
	case config.EngineWS:
		return synth.DialWS(ctx, cfg.Remote.WSURL, log.WithPrefix("ws"))
	case config.EngineNATS:
		return synth.ConnectNATS(cfg.Remote.NATSURL, cfg.Remote.Subject, log.WithPrefix("nats"))
	default:
		c, err := workerCache(cfg, useCache, cl)
		if err != nil {
			return nil, err
		}
		w, err := newWorker(cfg, c)
		if err != nil {
			return nil, err
		}
		return synth.NewLocalChannel(w), nil
	}
}

// openHistory opens the history store, or returns nil when disabled.
func openHistory(ctx context.Context, cfg config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(ctx, cfg.History.Path, log.WithPrefix("history"))
	if err != nil {
		log.Warn("history disabled", "err", err)
		return nil
	}
	return store
}

// recordHistory stores finished results. It runs from the session's finish
// hook, so writes go through a buffered channel to stay off the dispatcher.
func recordHistory(ctx context.Context, store *history.Store, cl *closers) func(session.Result) {
	if store == nil {
		return func(session.Result) {}
	}
	results := make(chan session.Result, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			e := history.Entry{
				ID:         r.ID,
				Mode:       string(r.Mode),
				Voice:      r.Voice,
				Preview:    history.Preview(r.Text),
				Chunks:     r.Chunks,
				Duration:   r.Duration,
				StartedAt:  r.StartedAt,
				FinishedAt: r.FinishedAt,
			}
			if r.Artifact != nil {
				e.ArtifactSize = r.Artifact.Size()
			}
			if r.Err != nil {
				e.Error = r.Err.Error()
			}
			if err := store.Record(ctx, e); err != nil {
				log.Warn("record history", "id", r.ID, "err", err)
			}
		}
	}()
	cl.add(func() error {
		close(results)
		<-done
		return nil
	})
	return func(r session.Result) {
		select {
		case results <- r:
		default:
			log.Warn("history backlog full, dropping entry", "id", r.ID)
		}
	}
}

// runtime is a started session and everything it owns.
type runtime struct {
	session *session.Session
	history *history.Store
	closers closers
	cancel  context.CancelFunc
	done    chan error
}

// startSession connects to the engine, starts the dispatcher and waits for
// the worker to report ready.
func startSession(ctx context.Context, cfg config.Config, out playback.Output, autoPlay, useCache bool) (*runtime, error) {
	var cl closers
	ch, err := openChannel(ctx, cfg, useCache, &cl)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	return newRuntime(ctx, cfg, ch, out, autoPlay, cl)
}

// newRuntime runs a session over ch. cl holds resources the runtime takes
// ownership of.
func newRuntime(ctx context.Context, cfg config.Config, ch synth.Channel, out playback.Output, autoPlay bool, cl closers) (*runtime, error) {
	rt := &runtime{done: make(chan error, 1), closers: cl}

	rt.history = openHistory(ctx, cfg)
	if rt.history != nil {
		rt.closers.add(rt.history.Close)
	}
	onFinish := recordHistory(context.Background(), rt.history, &rt.closers)

	rt.session = session.New(ch, out,
		[]session.Option{
			session.WithDevice(cfg.Device),
			session.WithAutoPlay(autoPlay),
			session.WithFinishHook(onFinish),
			session.WithLogger(log.WithPrefix("session")),
		},
		playback.WithResumeThreshold(cfg.ResumeThreshold),
	)
	rt.session.Player().SetVolume(cfg.Volume)

	runCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	go func() { rt.done <- rt.session.Run(runCtx) }()

	if err := rt.session.WaitReady(ctx); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("engine did not become ready: %w", err)
	}
	return rt, nil
}

// resolveVoice returns voice when the engine offers it, and otherwise the
// engine's first voice.
func (rt *runtime) resolveVoice(voice string) string {
	voices := rt.session.Voices()
	for _, v := range voices {
		if v.ID == voice {
			return voice
		}
	}
	if len(voices) == 0 {
		return voice
	}
	log.Warn("voice not offered by engine, using default", "voice", voice, "default", voices[0].ID)
	return voices[0].ID
}

// Close stops the dispatcher, then the session, then owned resources.
func (rt *runtime) Close() error {
	rt.cancel()
	err := rt.session.Close()
	if runErr := <-rt.done; runErr != nil {
		var ce *session.ChannelError
		if !errors.As(runErr, &ce) {
			err = errors.Join(err, runErr)
		}
	}
	return errors.Join(err, rt.closers.Close())
}
