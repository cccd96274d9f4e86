package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/export"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/session"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

// fakeChannel lets a test play the worker's side by hand.
type fakeChannel struct {
	mu     sync.Mutex
	sent   []synth.Request
	sentCh chan synth.Request
	events chan synth.Event
	once   sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		sentCh: make(chan synth.Request, 16),
		events: make(chan synth.Event, 16),
	}
}

func (f *fakeChannel) Send(_ context.Context, req synth.Request) error {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	f.sentCh <- req
	return nil
}

func (f *fakeChannel) Events() <-chan synth.Event { return f.events }

func (f *fakeChannel) Close() error {
	f.once.Do(func() { close(f.events) })
	return nil
}

func (f *fakeChannel) next(t *testing.T) synth.Request {
	t.Helper()
	select {
	case r := <-f.sentCh:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no request sent")
		return synth.Request{}
	}
}

func wavBytes(t *testing.T, d time.Duration) []byte {
	t.Helper()
	frames := int(int64(d) * 8000 / int64(time.Second))
	buf, err := audio.NewBuffer(8000, [][]float32{make([]float32, frames)})
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	data, err := export.Encode([]*audio.Buffer{buf}, buf.Format(), buf.Frames())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return data
}

// eventually polls cond until it holds.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startSession(t *testing.T, ch synth.Channel, opts ...session.Option) (*session.Session, *playback.VirtualOutput) {
	t.Helper()
	out := playback.NewVirtualOutput()
	s := session.New(ch, out, opts)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return s, out
}

func startLocal(t *testing.T, opts ...session.Option) (*session.Session, *playback.VirtualOutput) {
	t.Helper()
	w := synth.NewWorker(synth.NewToneSynthesizer(8000, 20*time.Millisecond))
	ch := synth.NewLocalChannel(w)
	t.Cleanup(func() { _ = ch.Close() })
	s, out := startSession(t, ch, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	return s, out
}

func TestGenerateTwoSentences(t *testing.T) {
	s, _ := startLocal(t)

	res, err := s.Generate(context.Background(), "Hello. World.", "af_heart")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	q := s.Queue()
	if q.Len() != 2 {
		t.Fatalf("queue has %d buffers, want 2", q.Len())
	}
	sum := q.At(0).Duration() + q.At(1).Duration()
	if q.TotalDuration() != sum {
		t.Errorf("TotalDuration() = %v, want %v", q.TotalDuration(), sum)
	}
	if res.Chunks != 2 {
		t.Errorf("Result.Chunks = %d, want 2", res.Chunks)
	}

	a, err := s.Artifacts().Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if a.Duration != sum {
		t.Errorf("artifact duration = %v, want %v", a.Duration, sum)
	}
	merged, err := audio.NewDecoder().Decode(a.Data)
	if err != nil {
		t.Fatalf("artifact does not decode: %v", err)
	}
	if merged.Duration() != sum {
		t.Errorf("decoded artifact = %v, want %v", merged.Duration(), sum)
	}

	snap := s.Snapshot()
	if snap.Status != session.StatusReady {
		t.Errorf("Status = %q, want ready", snap.Status)
	}
	if snap.Progress != (session.Progress{Total: 2, Completed: 2}) {
		t.Errorf("Progress = %+v, want {2 2}", snap.Progress)
	}
	if snap.Sentence != "World." {
		t.Errorf("Sentence = %q, want World.", snap.Sentence)
	}
	if snap.FinishedAt.IsZero() || snap.Elapsed() < 0 {
		t.Errorf("timestamps not recorded: %+v", snap)
	}
	if len(snap.Voices) == 0 {
		t.Error("voice catalog empty")
	}
}

func TestGenerateReplacesPreviousAudio(t *testing.T) {
	s, _ := startLocal(t)
	ctx := context.Background()

	if _, err := s.Generate(ctx, "One. Two. Three.", "af_heart"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	first, _ := s.Artifacts().Current()

	if _, err := s.Generate(ctx, "Four.", "af_heart"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if s.Queue().Len() != 1 {
		t.Errorf("queue has %d buffers, want 1", s.Queue().Len())
	}
	if _, err := s.Artifacts().Get(first.ID); !errors.Is(err, export.ErrRevoked) {
		t.Errorf("old artifact Get() error = %v, want ErrRevoked", err)
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	s, _ := startLocal(t)
	tests := []struct {
		name  string
		req   session.Request
		cause error
	}{
		{"empty text", session.Request{Text: "  ", Voice: "af_heart"}, session.ErrEmptyText},
		{"no voice", session.Request{Text: "Hi."}, session.ErrNoVoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.cause) {
				t.Errorf("Submit() error = %v, want %v", err, tt.cause)
			}
			if session.Code(err) != session.CodeInvalidInput {
				t.Errorf("Code() = %q, want INVALID_INPUT", session.Code(err))
			}
		})
	}
}

func TestStaleChunkDoesNotMutateQueue(t *testing.T) {
	ch := newFakeChannel()
	s, _ := startSession(t, ch)
	ch.next(t) // initialize
	ch.events <- synth.Ready{Voices: synth.DefaultVoices}
	eventually(t, "ready", func() bool { return s.Snapshot().Status == session.StatusReady })

	ctx := context.Background()
	firstDone, err := s.Submit(ctx, session.Request{Text: "First.", Voice: "af_heart"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	first := ch.next(t)
	if _, err := s.Submit(ctx, session.Request{Text: "Second.", Voice: "af_heart"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second := ch.next(t)

	if r := <-firstDone; !errors.Is(r.Err, session.ErrSuperseded) {
		t.Errorf("first result error = %v, want ErrSuperseded", r.Err)
	}

	ch.events <- synth.ChunkComplete{CorrelationID: first.CorrelationID, AudioBytes: wavBytes(t, time.Second)}
	ch.events <- synth.ChunkStart{CorrelationID: second.CorrelationID, TotalChunks: 1}
	eventually(t, "chunking", func() bool { return s.Snapshot().Status == session.StatusChunking })

	if n := s.Queue().Len(); n != 0 {
		t.Fatalf("stale chunk appended: queue has %d buffers", n)
	}

	ch.events <- synth.ChunkComplete{CorrelationID: second.CorrelationID, AudioBytes: wavBytes(t, 500*time.Millisecond)}
	eventually(t, "append", func() bool { return s.Queue().Len() == 1 })
	if got := s.Queue().TotalDuration(); got != 500*time.Millisecond {
		t.Errorf("TotalDuration() = %v, want 500ms", got)
	}
}

func TestDecodeErrorKeepsQueuedAudio(t *testing.T) {
	ch := newFakeChannel()
	s, _ := startSession(t, ch)
	ch.next(t)
	ch.events <- synth.Ready{}

	eventually(t, "running", func() bool { return s.Snapshot().Status == session.StatusReady })
	done, err := s.Submit(context.Background(), session.Request{Text: "A. B.", Voice: "v"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	id := ch.next(t).CorrelationID

	ch.events <- synth.ChunkStart{CorrelationID: id, TotalChunks: 2}
	ch.events <- synth.ChunkComplete{CorrelationID: id, AudioBytes: wavBytes(t, time.Second)}
	ch.events <- synth.ChunkComplete{CorrelationID: id, AudioBytes: []byte("not a wav file")}

	r := <-done
	if session.Code(r.Err) != session.CodeDecode {
		t.Errorf("result code = %q, want DECODE_FAILURE", session.Code(r.Err))
	}
	if !audio.IsDecodeError(r.Err) {
		t.Errorf("result error %v does not wrap a DecodeError", r.Err)
	}

	snap := s.Snapshot()
	if snap.Status != session.StatusError || snap.Error != session.MsgDecodeFailed {
		t.Errorf("snapshot = %q/%q, want error/%q", snap.Status, snap.Error, session.MsgDecodeFailed)
	}
	if s.Queue().Len() != 1 {
		t.Errorf("queue has %d buffers, want 1", s.Queue().Len())
	}
	if snap.Artifact == nil {
		t.Error("artifact of decoded audio missing")
	}

	// A new request clears the error.
	if _, err := s.Submit(context.Background(), session.Request{Text: "C.", Voice: "v"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := s.Snapshot().Error; got != "" {
		t.Errorf("Error = %q after new request, want empty", got)
	}
}

func TestChannelErrorEvent(t *testing.T) {
	ch := newFakeChannel()
	s, _ := startSession(t, ch)
	ch.next(t)
	ch.events <- synth.Ready{}
	eventually(t, "ready", func() bool { return s.Snapshot().Status == session.StatusReady })

	done, err := s.Submit(context.Background(), session.Request{Text: "A.", Voice: "v"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	id := ch.next(t).CorrelationID
	ch.events <- synth.Error{CorrelationID: id, Message: "model crashed"}

	r := <-done
	var cerr *session.ChannelError
	if !errors.As(r.Err, &cerr) || cerr.Message != "model crashed" {
		t.Errorf("result error = %v, want ChannelError(model crashed)", r.Err)
	}
	if got := s.Snapshot().Error; got != "model crashed" {
		t.Errorf("Error = %q, want model crashed", got)
	}
}

func TestChannelClosed(t *testing.T) {
	ch := newFakeChannel()
	out := playback.NewVirtualOutput()
	s := session.New(ch, out, nil)
	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()
	ch.next(t)
	ch.events <- synth.Ready{}
	eventually(t, "ready", func() bool { return s.Snapshot().Status == session.StatusReady })

	done, err := s.Submit(context.Background(), session.Request{Text: "A.", Voice: "v"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ch.next(t)
	_ = ch.Close()

	var cerr *session.ChannelError
	if err := <-errc; !errors.As(err, &cerr) || !cerr.Closed {
		t.Errorf("Run() error = %v, want closed ChannelError", err)
	}
	if r := <-done; !errors.As(r.Err, &cerr) {
		t.Errorf("result error = %v, want ChannelError", r.Err)
	}
	if snap := s.Snapshot(); snap.Status != session.StatusError || snap.Playback.Generating {
		t.Errorf("snapshot after close = %+v", snap)
	}
}

func TestAutoPlayStartsWithFirstAudio(t *testing.T) {
	s, out := startLocal(t, session.WithAutoPlay(true))

	if _, err := s.Generate(context.Background(), "Hello there. General Kenobi.", "am_michael"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if st := s.Player().State(); st != playback.StatePlaying {
		t.Fatalf("State() = %v, want playing", st)
	}

	out.Advance(s.Queue().TotalDuration())
	if st := s.Player().State(); st != playback.StateStopped {
		t.Errorf("State() after end = %v, want stopped", st)
	}
}

func TestFinishHook(t *testing.T) {
	var mu sync.Mutex
	var got []session.Result
	s, _ := startLocal(t, session.WithFinishHook(func(r session.Result) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}))

	if _, err := s.Generate(context.Background(), "Hi.", "bf_emma"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("hook called %d times, want 1", len(got))
	}
	if got[0].Voice != "bf_emma" || got[0].Mode != session.ModeSingle || got[0].Artifact == nil {
		t.Errorf("hook result = %+v", got[0])
	}
}
