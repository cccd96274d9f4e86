package audio_test

import (
	"testing"
	"time"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
)

func silence(t *testing.T, sampleRate int, d time.Duration) *audio.Buffer {
	t.Helper()
	frames := int(int64(d) * int64(sampleRate) / int64(time.Second))
	buf, err := audio.NewBuffer(sampleRate, [][]float32{make([]float32, frames)})
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	return buf
}

func TestQueueTotalDurationTracksAppends(t *testing.T) {
	q := audio.NewQueue()
	durations := []time.Duration{
		500 * time.Millisecond,
		1500 * time.Millisecond,
		250 * time.Millisecond,
		2 * time.Second,
	}

	var want time.Duration
	for i, d := range durations {
		b := silence(t, 8000, d)
		want += b.Duration()
		if got := q.Append(b); got != want {
			t.Errorf("Append(#%d) total = %v, want %v", i, got, want)
		}
		if got := q.TotalDuration(); got != want {
			t.Errorf("TotalDuration() after #%d = %v, want %v", i, got, want)
		}
		if got := q.Len(); got != i+1 {
			t.Errorf("Len() = %d, want %d", got, i+1)
		}
	}
}

func TestQueueReset(t *testing.T) {
	q := audio.NewQueue()
	q.Append(silence(t, 8000, time.Second))
	gen := q.Generation()

	q.Reset()

	if q.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", q.Len())
	}
	if q.TotalDuration() != 0 {
		t.Errorf("TotalDuration() after Reset = %v, want 0", q.TotalDuration())
	}
	if q.Generation() == gen {
		t.Error("Generation() did not change after Reset")
	}
}

func TestQueueLocate(t *testing.T) {
	q := audio.NewQueue()
	q.Append(silence(t, 1000, time.Second))
	q.Append(silence(t, 1000, 1500*time.Millisecond))
	q.Append(silence(t, 1000, 2*time.Second))

	tests := []struct {
		name      string
		offset    time.Duration
		wantIndex int
		wantIntra time.Duration
		wantOK    bool
	}{
		{"start", 0, 0, 0, true},
		{"negative clamps to start", -time.Second, 0, 0, true},
		{"inside first", 400 * time.Millisecond, 0, 400 * time.Millisecond, true},
		{"boundary belongs to next", time.Second, 1, 0, true},
		{"inside second", 2 * time.Second, 1, time.Second, true},
		{"inside last", 4 * time.Second, 2, 1500 * time.Millisecond, true},
		{"exact end", 4500 * time.Millisecond, 3, 0, false},
		{"past end", 10 * time.Second, 3, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, intra, ok := q.Locate(tt.offset)
			if idx != tt.wantIndex || intra != tt.wantIntra || ok != tt.wantOK {
				t.Errorf("Locate(%v) = (%d, %v, %v), want (%d, %v, %v)",
					tt.offset, idx, intra, ok, tt.wantIndex, tt.wantIntra, tt.wantOK)
			}
		})
	}
}

func TestLocateAlwaysInsideBuffer(t *testing.T) {
	q := audio.NewQueue()
	for _, ms := range []int{120, 7, 980, 333, 1} {
		q.Append(silence(t, 1000, time.Duration(ms)*time.Millisecond))
	}

	for off := time.Duration(0); off < q.TotalDuration(); off += 3 * time.Millisecond {
		idx, intra, ok := q.Locate(off)
		if !ok {
			t.Fatalf("Locate(%v) ok = false inside total %v", off, q.TotalDuration())
		}
		if idx < 0 || idx >= q.Len() {
			t.Fatalf("Locate(%v) index = %d out of range", off, idx)
		}
		if intra < 0 || intra >= q.At(idx).Duration() {
			t.Fatalf("Locate(%v) intra = %v outside [0, %v)", off, intra, q.At(idx).Duration())
		}
	}
}

func TestNewBufferValidation(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   [][]float32
		wantErr    bool
	}{
		{"mono", 24000, [][]float32{make([]float32, 10)}, false},
		{"stereo", 44100, [][]float32{make([]float32, 4), make([]float32, 4)}, false},
		{"zero rate", 0, [][]float32{make([]float32, 4)}, true},
		{"no channels", 8000, nil, true},
		{"ragged", 8000, [][]float32{make([]float32, 4), make([]float32, 3)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := audio.NewBuffer(tt.sampleRate, tt.channels)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewBuffer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBufferFrameAt(t *testing.T) {
	b := silence(t, 1000, time.Second)
	if got := b.FrameAt(250 * time.Millisecond); got != 250 {
		t.Errorf("FrameAt(250ms) = %d, want 250", got)
	}
	if got := b.FrameAt(5 * time.Second); got != 1000 {
		t.Errorf("FrameAt(5s) = %d, want 1000", got)
	}
	if got := b.FrameAt(-time.Second); got != 0 {
		t.Errorf("FrameAt(-1s) = %d, want 0", got)
	}
}

func TestFrameStartRoundTrips(t *testing.T) {
	b, err := audio.NewBuffer(24000, [][]float32{make([]float32, 24000)})
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []int{0, 1, 12000, 12001, 23999} {
		if got := b.FrameAt(audio.FrameStart(f, 24000)); got != f {
			t.Errorf("FrameAt(FrameStart(%d)) = %d, want %d", f, got, f)
		}
	}
}
