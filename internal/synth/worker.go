package synth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/cache"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/metrics"
)

// ErrNotInitialized is reported for generate requests sent before initialize.
var ErrNotInitialized = errors.New("worker is not initialized")

// Worker is the synthesis side of the contract. It handles one request at
// a time, like a dedicated worker thread, and reports progress as events.
type Worker struct {
	mu          sync.Mutex
	synth       Synthesizer
	cache       cache.Cache
	limiter     *rate.Limiter
	maxRunes    int
	device      string
	initialized bool
	logger      *log.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithCache stores synthesized chunks in c.
func WithCache(c cache.Cache) WorkerOption {
	return func(w *Worker) { w.cache = c }
}

// WithChunkInterval paces chunk output to at most one per interval.
func WithChunkInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithMaxChunkRunes overrides DefaultMaxChunkRunes.
func WithMaxChunkRunes(n int) WorkerOption {
	return func(w *Worker) { w.maxRunes = n }
}

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(l *log.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// NewWorker creates a worker around s.
func NewWorker(s Synthesizer, opts ...WorkerOption) *Worker {
	w := &Worker{
		synth:    s,
		maxRunes: DefaultMaxChunkRunes,
		logger:   log.WithPrefix("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Device returns the device selected by the last initialize or reinit.
func (w *Worker) Device() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.device
}

// Handle processes req and calls emit for every resulting event, in order.
func (w *Worker) Handle(ctx context.Context, req Request, emit func(Event)) {
	switch req.Type {
	case TypeInitialize, TypeReinit:
		w.mu.Lock()
		w.device = req.Device
		w.initialized = true
		w.mu.Unlock()
		w.logger.Info("worker ready", "device", req.Device, "voices", len(w.synth.Voices()))
		emit(Ready{Voices: w.synth.Voices()})
	case TypeGenerate:
		w.generate(ctx, req, emit)
	default:
		emit(Error{CorrelationID: req.CorrelationID, Message: "unknown request type " + req.Type})
	}
}

func (w *Worker) generate(ctx context.Context, req Request, emit func(Event)) {
	w.mu.Lock()
	ready := w.initialized
	w.mu.Unlock()
	if !ready {
		emit(Error{CorrelationID: req.CorrelationID, Message: ErrNotInitialized.Error()})
		return
	}

	chunks := Segment(req.Text, w.maxRunes)
	if len(chunks) == 0 {
		emit(Error{CorrelationID: req.CorrelationID, Message: ErrEmptyText.Error()})
		return
	}

	logger := w.logger.With("request", req.CorrelationID, "voice", req.VoiceID)
	logger.Debug("generation started", "chunks", len(chunks))
	emit(ChunkStart{CorrelationID: req.CorrelationID, TotalChunks: len(chunks)})

	for i, text := range chunks {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				emit(Error{CorrelationID: req.CorrelationID, Message: err.Error()})
				return
			}
		}

		data, err := w.synthesize(ctx, text, req.VoiceID)
		if err != nil {
			logger.Error("synthesis failed", "chunk", i, "err", err)
			emit(Error{CorrelationID: req.CorrelationID, Message: err.Error()})
			return
		}
		emit(ChunkComplete{
			CorrelationID: req.CorrelationID,
			AudioBytes:    data,
			SourceText:    text,
			ChunkIndex:    i,
		})
	}

	logger.Debug("generation complete")
	emit(Complete{CorrelationID: req.CorrelationID})
}

func (w *Worker) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	key := cache.Key(voice, text)
	if w.cache != nil {
		if data, ok := w.cache.Get(key); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return data, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	data, err := w.synth.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	metrics.SynthesisDuration.Observe(time.Since(start).Seconds())

	if w.cache != nil {
		if err := w.cache.Put(key, data); err != nil {
			w.logger.Warn("could not cache chunk", "err", err)
		}
	}
	return data, nil
}
