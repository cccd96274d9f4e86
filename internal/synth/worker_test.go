package synth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/cache"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

// countingSynth wraps a tone synthesizer and counts calls.
type countingSynth struct {
	*synth.ToneSynthesizer
	mu    sync.Mutex
	calls int
	fail  string
}

func newCountingSynth() *countingSynth {
	return &countingSynth{ToneSynthesizer: synth.NewToneSynthesizer(8000, 20*time.Millisecond)}
}

func (c *countingSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.fail != "" && text == c.fail {
		return nil, errors.New("engine failure")
	}
	return c.ToneSynthesizer.Synthesize(ctx, text, voice)
}

func collect(w *synth.Worker, req synth.Request) []synth.Event {
	var events []synth.Event
	w.Handle(context.Background(), req, func(e synth.Event) { events = append(events, e) })
	return events
}

func statuses(events []synth.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Status()
	}
	return out
}

func TestWorkerGenerate(t *testing.T) {
	w := synth.NewWorker(newCountingSynth())
	if got := collect(w, synth.Initialize("cpu")); len(got) != 1 || got[0].Status() != synth.StatusReady {
		t.Fatalf("initialize events = %v, want [ready]", statuses(got))
	}
	if w.Device() != "cpu" {
		t.Errorf("Device() = %q, want cpu", w.Device())
	}

	events := collect(w, synth.Generate("Hello. World.", "af_heart", "r1"))
	want := []string{synth.StatusChunkStart, synth.StatusChunkComplete, synth.StatusChunkComplete, synth.StatusComplete}
	got := statuses(events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
		if events[i].Correlation() != "r1" {
			t.Errorf("event %d correlation = %q, want r1", i, events[i].Correlation())
		}
	}

	if start := events[0].(synth.ChunkStart); start.TotalChunks != 2 {
		t.Errorf("TotalChunks = %d, want 2", start.TotalChunks)
	}
	dec := audio.NewDecoder()
	for i, e := range events[1:3] {
		cc := e.(synth.ChunkComplete)
		if cc.ChunkIndex != i {
			t.Errorf("ChunkIndex = %d, want %d", cc.ChunkIndex, i)
		}
		if _, err := dec.Decode(cc.AudioBytes); err != nil {
			t.Errorf("chunk %d does not decode: %v", i, err)
		}
	}
}

func TestWorkerErrors(t *testing.T) {
	tests := []struct {
		name string
		init bool
		req  synth.Request
	}{
		{"not initialized", false, synth.Generate("Hi.", "af_heart", "a")},
		{"empty text", true, synth.Generate("  ", "af_heart", "b")},
		{"unknown voice", true, synth.Generate("Hi.", "nobody", "c")},
		{"unknown type", true, synth.Request{Type: "dance", CorrelationID: "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := synth.NewWorker(newCountingSynth())
			if tt.init {
				collect(w, synth.Initialize("cpu"))
			}
			events := collect(w, tt.req)
			last := events[len(events)-1]
			if last.Status() != synth.StatusError {
				t.Fatalf("last event = %q, want error", last.Status())
			}
			if last.Correlation() != tt.req.CorrelationID {
				t.Errorf("error correlation = %q, want %q", last.Correlation(), tt.req.CorrelationID)
			}
		})
	}
}

func TestWorkerStopsOnChunkFailure(t *testing.T) {
	s := newCountingSynth()
	s.fail = "Two."
	w := synth.NewWorker(s)
	collect(w, synth.Initialize("cpu"))

	got := statuses(collect(w, synth.Generate("One. Two. Three.", "af_heart", "x")))
	want := []string{synth.StatusChunkStart, synth.StatusChunkComplete, synth.StatusError}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if s.calls != 2 {
		t.Errorf("synthesize calls = %d, want 2", s.calls)
	}
}

func TestWorkerUsesCache(t *testing.T) {
	s := newCountingSynth()
	w := synth.NewWorker(s, synth.WithCache(cache.NewMemory(1<<20)))
	collect(w, synth.Initialize("cpu"))

	collect(w, synth.Generate("Same. Same.", "af_heart", "1"))
	collect(w, synth.Generate("Same.", "af_heart", "2"))

	if s.calls != 1 {
		t.Errorf("synthesize calls = %d, want 1", s.calls)
	}
}

func TestLocalChannel(t *testing.T) {
	ch := synth.NewLocalChannel(synth.NewWorker(newCountingSynth()))
	ctx := context.Background()

	if err := ch.Send(ctx, synth.Initialize("cpu")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := ch.Send(ctx, synth.Generate("A. B.", "bm_george", "id")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 5 {
		select {
		case e := <-ch.Events():
			got = append(got, e.Status())
		case <-timeout:
			t.Fatalf("timed out after events %v", got)
		}
	}
	want := []string{synth.StatusReady, synth.StatusChunkStart, synth.StatusChunkComplete, synth.StatusChunkComplete, synth.StatusComplete}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}

	if err := ch.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, ok := <-ch.Events(); ok {
		t.Error("events channel still open after Close()")
	}
	if err := ch.Send(ctx, synth.Initialize("cpu")); !errors.Is(err, synth.ErrChannelClosed) {
		t.Errorf("Send() after Close error = %v, want ErrChannelClosed", err)
	}
}
